// Package terminal defines the contract against the external trading
// terminal: the synchronous primitive set, its wire types, and the
// closed retcode/filling-mode enumerations the rest of the gateway
// reasons about. The terminal connection is single-threaded by nature;
// serialization is the session's job, not the gateway's.
package terminal

import (
	"context"
	"errors"
)

// Sentinel errors implementations return for empty terminal responses.
var (
	ErrNoTick           = errors.New("no tick available")
	ErrNoBar            = errors.New("no bar available")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrPositionNotFound = errors.New("position not found")
)

// Gateway is one logical connection to the trading terminal. It is not
// safe for concurrent use; callers must serialize access.
type Gateway interface {
	Initialize(ctx context.Context, path string) error
	Login(ctx context.Context, login int64, password, server string) error
	Shutdown(ctx context.Context) error

	SymbolNames(ctx context.Context) ([]string, error)
	SymbolSelect(ctx context.Context, symbol string, enable bool) (bool, error)
	SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	SymbolTick(ctx context.Context, symbol string) (Tick, error)
	LastBar(ctx context.Context, symbol string) (Bar, error)

	OrderSend(ctx context.Context, req OrderRequest) (OrderResult, error)
	Positions(ctx context.Context) ([]Position, error)
	PositionByTicket(ctx context.Context, ticket int64) (Position, error)
	AccountInfo(ctx context.Context) (AccountInfo, error)
}
