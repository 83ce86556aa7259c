// Package errs defines the gateway's closed error taxonomy. Every
// terminal-gateway failure is converted into one of these kinds at the
// session boundary; nothing escapes unclassified.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindNotConnected
	KindSymbol
	KindNoPrice
	KindValidation
	KindExecution
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "CONNECTION_ERROR"
	case KindNotConnected:
		return "NOT_CONNECTED"
	case KindSymbol:
		return "SYMBOL_ERROR"
	case KindNoPrice:
		return "NO_PRICE"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindExecution:
		return "EXECUTION_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}

// Error is a classified gateway error. Code carries the terminal
// retcode for execution failures, zero otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the kind from an error chain.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// CodeOf extracts the retcode from an error chain, zero if absent.
func CodeOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func Connection(msg string, err error) *Error {
	return &Error{Kind: KindConnection, Message: msg, Err: err}
}

func NotConnected() *Error {
	return &Error{Kind: KindNotConnected, Message: "not connected"}
}

func Symbol(msg string, err error) *Error {
	return &Error{Kind: KindSymbol, Message: msg, Err: err}
}

func NoPrice(symbol string, err error) *Error {
	return &Error{Kind: KindNoPrice, Message: "no price data for " + symbol, Err: err}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Execution(code int, msg string) *Error {
	return &Error{Kind: KindExecution, Code: code, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}
