package terminal

import "time"

// TradeMode mirrors the terminal's per-symbol trade mode flag.
// Zero means trading is disabled for the symbol entirely.
type TradeMode int

const (
	TradeModeDisabled  TradeMode = 0
	TradeModeLongOnly  TradeMode = 1
	TradeModeShortOnly TradeMode = 2
	TradeModeCloseOnly TradeMode = 3
	TradeModeFull      TradeMode = 4
)

// Tick is a live top-of-book quote for a symbol.
type Tick struct {
	Bid  float64
	Ask  float64
	Time time.Time
}

// Bar is the most recent closed bar, used as a price fallback when the
// market emits no live ticks.
type Bar struct {
	High  float64
	Low   float64
	Close float64
	Time  time.Time
}

// SymbolInfo is the instrument specification published by the terminal.
type SymbolInfo struct {
	Name        string
	Point       float64
	Digits      int
	Spread      int
	TradeMode   TradeMode
	VolumeMin   float64
	VolumeMax   float64
	VolumeStep  float64
	StopsLevel  int // minimum stop distance in points
	FillingMask int // bitmask of supported filling modes
}

// Tradeable reports whether orders can be placed on the symbol.
func (s SymbolInfo) Tradeable() bool {
	return s.TradeMode != TradeModeDisabled
}

// AccountInfo is the terminal's view of the logged-in account.
type AccountInfo struct {
	Login        int64
	Balance      float64
	Equity       float64
	Margin       float64
	MarginFree   float64
	TradeAllowed bool // trading permitted on the account
	TradeExpert  bool // automated trading enabled in the terminal
}

// PositionType denotes the direction of an open position.
type PositionType int

const (
	PositionBuy  PositionType = 0
	PositionSell PositionType = 1
)

// Position is an open position held by the account.
type Position struct {
	Ticket       int64
	Symbol       string
	Type         PositionType
	Volume       float64
	PriceOpen    float64
	PriceCurrent float64
	StopLoss     float64
	TakeProfit   float64
	Profit       float64
	Magic        int64
	Comment      string
	Time         time.Time
}

// OrderAction selects the trade operation requested from the terminal.
type OrderAction int

// ActionDeal is an immediate market execution request.
const ActionDeal OrderAction = 1

// OrderType is the wire-level order direction.
type OrderType int

const (
	OrderBuy  OrderType = 0
	OrderSell OrderType = 1
)

// OrderRequest is the order submission payload sent to the terminal.
type OrderRequest struct {
	Action     OrderAction
	Symbol     string
	Volume     float64
	Type       OrderType
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int // max slippage in points
	Magic      int64
	Comment    string
	Position   int64 // ticket when closing an existing position
	Filling    FillingMode
}

// OrderResult is the terminal's acknowledgement of an order submission.
type OrderResult struct {
	Retcode Retcode
	Order   int64
	Deal    int64
	Volume  float64
	Price   float64
	Comment string
}
