// Package session implements the per-account serialized handle to the
// trading terminal. A session owns exactly one terminal connection; the
// connection is not thread-safe, so every call that touches it goes
// through the session's exclusive lock, held only for the duration of
// the individual terminal call burst.
package session

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"mt5-gateway/internal/errs"
	"mt5-gateway/pkg/terminal"
)

// MarketStatus reports whether a symbol is currently trading.
type MarketStatus string

const (
	MarketTradeable MarketStatus = "TRADEABLE"
	MarketClosed    MarketStatus = "CLOSED"
)

// Quote is a deduplicated price update for one symbol. Only the latest
// value and the running session high/low are ever retained.
type Quote struct {
	Symbol       string       `json:"symbol"`
	Bid          float64      `json:"bid"`
	Ask          float64      `json:"ask"`
	Spread       float64      `json:"spread"`
	Time         time.Time    `json:"time"`
	High         float64      `json:"high"`
	Low          float64      `json:"low"`
	MarketStatus MarketStatus `json:"marketStatus"`
}

// Streams is the hook a session uses to drain its poll workers on
// disconnect. Bound by the registry after construction.
type Streams interface {
	Shutdown()
}

type symbolStats struct {
	high     float64
	low      float64
	lastTick time.Time
}

// Session is the single point of serialized access to one account's
// terminal connection.
type Session struct {
	accountID string
	term      terminal.Gateway

	termMu sync.Mutex // serializes terminal calls

	mu           sync.RWMutex // guards the state below
	connected    bool
	lastActivity time.Time
	login        int64
	tradeAllowed bool
	balance      float64
	stats        map[string]*symbolStats
	streams      Streams
}

// New creates a disconnected session for the account.
func New(accountID string, term terminal.Gateway) *Session {
	return &Session{
		accountID:    accountID,
		term:         term,
		lastActivity: time.Now(),
		stats:        make(map[string]*symbolStats),
	}
}

// BindStreams attaches the stream engine drained on disconnect.
func (s *Session) BindStreams(st Streams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = st
}

// AccountID returns the owning account identifier.
func (s *Session) AccountID() string { return s.accountID }

// Connected reports current connectivity.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastActivity returns the time of the most recent public operation.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Login returns the terminal login recorded at connect time.
func (s *Session) Login() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.login
}

// touch records activity; called on entry of every public operation,
// regardless of outcome.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) requireConnected() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return errs.NotConnected()
	}
	return nil
}

// Connect initializes the terminal (optionally at a given install
// path), authenticates, and verifies automated trading is enabled. On
// any failure the session stays disconnected.
func (s *Session) Connect(ctx context.Context, server string, login int64, password, terminalPath string) error {
	s.touch()
	s.termMu.Lock()
	defer s.termMu.Unlock()

	if err := s.term.Initialize(ctx, terminalPath); err != nil {
		return errs.Connection("terminal initialization failed", err)
	}
	if err := s.term.Login(ctx, login, password, server); err != nil {
		return errs.Connection("login failed", err)
	}
	acct, err := s.term.AccountInfo(ctx)
	if err != nil {
		return errs.Connection("account query failed", err)
	}
	if !acct.TradeExpert {
		return errs.Connection("automated trading disabled in terminal", nil)
	}

	s.mu.Lock()
	s.connected = true
	s.login = acct.Login
	s.tradeAllowed = acct.TradeAllowed
	s.balance = acct.Balance
	s.stats = make(map[string]*symbolStats)
	s.mu.Unlock()
	return nil
}

// Disconnect stops all poll workers, waits for them to drain, and
// releases the terminal connection. Idempotent.
func (s *Session) Disconnect(ctx context.Context) error {
	s.touch()

	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	streams := s.streams
	s.stats = make(map[string]*symbolStats)
	s.mu.Unlock()

	// Workers observe the stop condition at loop granularity; the
	// terminal must not be torn down while any of them may still poll.
	if streams != nil {
		streams.Shutdown()
	}

	s.termMu.Lock()
	err := s.term.Shutdown(ctx)
	s.termMu.Unlock()
	if err != nil {
		return errs.Connection("terminal shutdown failed", err)
	}
	return nil
}

// Symbols lists the symbol names known to the terminal.
func (s *Session) Symbols(ctx context.Context) ([]string, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}

	s.termMu.Lock()
	names, err := s.term.SymbolNames(ctx)
	s.termMu.Unlock()
	if err != nil {
		return nil, errs.Connection("symbol list query failed", err)
	}
	sort.Strings(names)
	return names, nil
}

// EnsureSymbol selects the symbol in the terminal and returns its
// specification.
func (s *Session) EnsureSymbol(ctx context.Context, symbol string) (terminal.SymbolInfo, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return terminal.SymbolInfo{}, err
	}

	s.termMu.Lock()
	defer s.termMu.Unlock()
	return s.ensureSymbolLocked(ctx, symbol)
}

func (s *Session) ensureSymbolLocked(ctx context.Context, symbol string) (terminal.SymbolInfo, error) {
	ok, err := s.term.SymbolSelect(ctx, symbol, true)
	if err != nil {
		return terminal.SymbolInfo{}, errs.Symbol("symbol select failed for "+symbol, err)
	}
	if !ok {
		return terminal.SymbolInfo{}, errs.Symbol("symbol "+symbol+" not selectable", nil)
	}
	info, err := s.term.SymbolInfo(ctx, symbol)
	if err != nil {
		return terminal.SymbolInfo{}, errs.Symbol("symbol "+symbol+" not found", err)
	}
	return info, nil
}

// Price reads a live quote and maintains the session's running
// high/low for the symbol. When no live tick is available it falls
// back to the most recent closed bar and marks the market closed.
func (s *Session) Price(ctx context.Context, symbol string) (Quote, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return Quote{}, err
	}

	s.termMu.Lock()
	info, err := s.ensureSymbolLocked(ctx, symbol)
	if err != nil {
		s.termMu.Unlock()
		return Quote{}, err
	}
	tick, tickErr := s.term.SymbolTick(ctx, symbol)
	var bar terminal.Bar
	var barErr error
	if tickErr != nil {
		bar, barErr = s.term.LastBar(ctx, symbol)
	}
	s.termMu.Unlock()

	if tickErr != nil {
		if barErr != nil {
			return Quote{}, errs.NoPrice(symbol, barErr)
		}
		return Quote{
			Symbol:       symbol,
			Bid:          bar.Close,
			Ask:          bar.Close,
			Time:         bar.Time,
			High:         bar.High,
			Low:          bar.Low,
			MarketStatus: MarketClosed,
		}, nil
	}

	spread := 0.0
	if info.Point > 0 {
		spread = (tick.Ask - tick.Bid) / info.Point
	}
	high, low := s.updateRange(symbol, tick)

	status := MarketClosed
	if info.Tradeable() {
		status = MarketTradeable
	}
	return Quote{
		Symbol:       symbol,
		Bid:          tick.Bid,
		Ask:          tick.Ask,
		Spread:       spread,
		Time:         tick.Time,
		High:         high,
		Low:          low,
		MarketStatus: status,
	}, nil
}

func (s *Session) updateRange(symbol string, t terminal.Tick) (high, low float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[symbol]
	if !ok {
		st = &symbolStats{high: t.Bid, low: t.Bid}
		s.stats[symbol] = st
	}
	st.high = math.Max(st.high, math.Max(t.Bid, t.Ask))
	st.low = math.Min(st.low, math.Min(t.Bid, t.Ask))
	st.lastTick = t.Time
	return st.high, st.low
}

// Tick reads the raw live tick for a symbol.
func (s *Session) Tick(ctx context.Context, symbol string) (terminal.Tick, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return terminal.Tick{}, err
	}

	s.termMu.Lock()
	tick, err := s.term.SymbolTick(ctx, symbol)
	s.termMu.Unlock()
	if err != nil {
		return terminal.Tick{}, errs.NoPrice(symbol, err)
	}
	return tick, nil
}

// Positions lists the account's open positions.
func (s *Session) Positions(ctx context.Context) ([]terminal.Position, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return nil, err
	}

	s.termMu.Lock()
	positions, err := s.term.Positions(ctx)
	s.termMu.Unlock()
	if err != nil {
		return nil, errs.Connection("position query failed", err)
	}
	return positions, nil
}

// FindPosition resolves an open position by ticket.
func (s *Session) FindPosition(ctx context.Context, ticket int64) (terminal.Position, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return terminal.Position{}, err
	}

	s.termMu.Lock()
	pos, err := s.term.PositionByTicket(ctx, ticket)
	s.termMu.Unlock()
	if err != nil {
		return terminal.Position{}, errs.NotFound("position not found")
	}
	return pos, nil
}

// AccountSnapshot reads the current account state and refreshes the
// cached balance.
func (s *Session) AccountSnapshot(ctx context.Context) (terminal.AccountInfo, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return terminal.AccountInfo{}, err
	}

	s.termMu.Lock()
	acct, err := s.term.AccountInfo(ctx)
	s.termMu.Unlock()
	if err != nil {
		return terminal.AccountInfo{}, errs.Connection("account query failed", err)
	}

	s.mu.Lock()
	s.balance = acct.Balance
	s.tradeAllowed = acct.TradeAllowed
	s.mu.Unlock()
	return acct, nil
}

// Send submits an order to the terminal.
func (s *Session) Send(ctx context.Context, req terminal.OrderRequest) (terminal.OrderResult, error) {
	s.touch()
	if err := s.requireConnected(); err != nil {
		return terminal.OrderResult{}, err
	}

	s.termMu.Lock()
	res, err := s.term.OrderSend(ctx, req)
	s.termMu.Unlock()
	if err != nil {
		return terminal.OrderResult{}, errs.Connection("order submission failed", err)
	}
	return res, nil
}
