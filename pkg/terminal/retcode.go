package terminal

import "fmt"

// Retcode is the terminal's trade server return code.
type Retcode int

// Known trade server return codes.
const (
	RetcodeRequote           Retcode = 10004
	RetcodeReject            Retcode = 10006
	RetcodeCancel            Retcode = 10007
	RetcodePlaced            Retcode = 10008
	RetcodeDone              Retcode = 10009
	RetcodeDonePartial       Retcode = 10010
	RetcodeError             Retcode = 10011
	RetcodeTimeout           Retcode = 10012
	RetcodeInvalidRequest    Retcode = 10013
	RetcodeInvalidVolume     Retcode = 10014
	RetcodeInvalidPrice      Retcode = 10015
	RetcodeInvalidStops      Retcode = 10016
	RetcodeTradeDisabled     Retcode = 10017
	RetcodeMarketClosed      Retcode = 10018
	RetcodeNoMoney           Retcode = 10019
	RetcodePriceChanged      Retcode = 10020
	RetcodePriceOff          Retcode = 10021
	RetcodeInvalidExpiration Retcode = 10022
	RetcodeOrderChanged      Retcode = 10023
	RetcodeTooManyRequests   Retcode = 10024
	RetcodeNoChanges         Retcode = 10025
	RetcodeServerDisablesAT  Retcode = 10026
	RetcodeClientDisablesAT  Retcode = 10027
	RetcodeLocked            Retcode = 10028
	RetcodeFrozen            Retcode = 10029
	RetcodeInvalidFill       Retcode = 10030
	RetcodeNoConnection      Retcode = 10031
	RetcodeOnlyReal          Retcode = 10032
	RetcodeLimitOrders       Retcode = 10033
	RetcodeLimitVolume       Retcode = 10034
)

// Success reports whether the retcode acknowledges the order.
func (r Retcode) Success() bool {
	switch r {
	case RetcodePlaced, RetcodeDone, RetcodeDonePartial:
		return true
	}
	return false
}

func (r Retcode) String() string {
	switch r {
	case RetcodeRequote:
		return "requote"
	case RetcodeReject:
		return "request rejected"
	case RetcodeCancel:
		return "request canceled"
	case RetcodePlaced:
		return "order placed"
	case RetcodeDone:
		return "done"
	case RetcodeDonePartial:
		return "done partially"
	case RetcodeError:
		return "request processing error"
	case RetcodeTimeout:
		return "request timed out"
	case RetcodeInvalidRequest:
		return "invalid request"
	case RetcodeInvalidVolume:
		return "invalid volume"
	case RetcodeInvalidPrice:
		return "invalid price"
	case RetcodeInvalidStops:
		return "invalid stops"
	case RetcodeTradeDisabled:
		return "trading disabled"
	case RetcodeMarketClosed:
		return "market closed"
	case RetcodeNoMoney:
		return "insufficient funds"
	case RetcodePriceChanged:
		return "price changed"
	case RetcodePriceOff:
		return "no quotes to process request"
	case RetcodeInvalidExpiration:
		return "invalid expiration"
	case RetcodeOrderChanged:
		return "order state changed"
	case RetcodeTooManyRequests:
		return "too many requests"
	case RetcodeNoChanges:
		return "no changes in request"
	case RetcodeServerDisablesAT:
		return "autotrading disabled by server"
	case RetcodeClientDisablesAT:
		return "autotrading disabled by client terminal"
	case RetcodeLocked:
		return "request locked for processing"
	case RetcodeFrozen:
		return "order or position frozen"
	case RetcodeInvalidFill:
		return "unsupported filling mode"
	case RetcodeNoConnection:
		return "no connection to trade server"
	case RetcodeOnlyReal:
		return "operation allowed only for live accounts"
	case RetcodeLimitOrders:
		return "pending order limit reached"
	case RetcodeLimitVolume:
		return "volume limit reached"
	}
	return fmt.Sprintf("retcode %d", int(r))
}

// RetryClass partitions failure retcodes for the execution retry loop.
type RetryClass int

const (
	// ClassRetryable failures may succeed under a different filling mode.
	ClassRetryable RetryClass = iota
	// ClassTerminal failures cannot be fixed by changing filling mode;
	// the retry loop must stop immediately.
	ClassTerminal
	// ClassOther covers unrecognized failures, treated as terminal.
	ClassOther
)

// Classify maps a failure retcode onto the retry taxonomy.
func Classify(r Retcode) RetryClass {
	switch r {
	case RetcodeInvalidFill, RetcodeInvalidRequest:
		return ClassRetryable
	case RetcodeNoMoney, RetcodeTradeDisabled, RetcodeServerDisablesAT,
		RetcodeClientDisablesAT, RetcodeMarketClosed, RetcodeInvalidVolume,
		RetcodeNoConnection, RetcodeOnlyReal:
		return ClassTerminal
	}
	return ClassOther
}
