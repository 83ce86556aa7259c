// Package trade implements order placement and close with retry over
// filling-mode candidates. Retries are bounded by the candidate list;
// terminal-class failures abort the loop immediately since no filling
// mode can fix them.
package trade

import (
	"context"
	"log"
	"strconv"

	"github.com/google/uuid"

	"mt5-gateway/internal/errs"
	"mt5-gateway/internal/events"
	"mt5-gateway/pkg/db"
	"mt5-gateway/pkg/terminal"
)

// Side is the caller-facing order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const baseDeviation = 20 // max slippage in points for the first attempt

// Request describes an order placement.
type Request struct {
	Symbol             string
	Volume             float64
	Side               Side
	StopLossDistance   float64
	TakeProfitDistance float64
	Comment            string
	Magic              int64
	Preferred          terminal.FillingMode
	HasPreferred       bool
}

// Result is the ack of a successful placement. FilledVolume is the
// normalized, exchange-confirmed volume, not the requested one.
type Result struct {
	OrderID      int64                `json:"order"`
	DealID       int64                `json:"deal"`
	FilledVolume float64              `json:"volume"`
	FilledPrice  float64              `json:"price"`
	StopLoss     float64              `json:"sl"`
	TakeProfit   float64              `json:"tp"`
	Filling      terminal.FillingMode `json:"-"`
	FillingName  string               `json:"filling_mode"`
}

// CloseRequest describes a position close. Volume zero means the full
// position; partial volume is clamped to what remains.
type CloseRequest struct {
	Ticket int64
	Volume float64
	Symbol string
}

// CloseResult is the ack of a successful close.
type CloseResult struct {
	DealID       int64                `json:"deal"`
	FilledVolume float64              `json:"volume"`
	FilledPrice  float64              `json:"price"`
	Profit       float64              `json:"profit"`
	Symbol       string               `json:"symbol"`
	PositionSide Side                 `json:"position_type"`
	Filling      terminal.FillingMode `json:"-"`
	FillingName  string               `json:"filling_mode"`
}

// Session is the serialized terminal access the executor drives. Each
// call acquires the session's terminal lock individually, so streaming
// workers are never starved across a whole placement.
type Session interface {
	AccountID() string
	EnsureSymbol(ctx context.Context, symbol string) (terminal.SymbolInfo, error)
	Tick(ctx context.Context, symbol string) (terminal.Tick, error)
	Send(ctx context.Context, req terminal.OrderRequest) (terminal.OrderResult, error)
	FindPosition(ctx context.Context, ticket int64) (terminal.Position, error)
	AccountSnapshot(ctx context.Context) (terminal.AccountInfo, error)
}

// Executor places and closes positions. Journal and Bus are optional;
// journaling is best-effort and never fails an execution.
type Executor struct {
	Journal *db.Database
	Bus     *events.Bus
}

// PlaceOrder validates, normalizes, and submits an order, retrying
// across the candidate filling modes until success or a terminal-class
// failure.
func (x *Executor) PlaceOrder(ctx context.Context, s Session, req Request) (Result, error) {
	if req.Symbol == "" {
		return Result{}, errs.Validation("missing symbol")
	}
	if req.Side != SideBuy && req.Side != SideSell {
		return Result{}, errs.Validation("invalid side " + string(req.Side))
	}
	if req.Volume <= 0 {
		return Result{}, errs.Validation("volume must be positive")
	}

	info, err := s.EnsureSymbol(ctx, req.Symbol)
	if err != nil {
		return Result{}, err
	}
	if !info.Tradeable() {
		return Result{}, errs.Symbol("symbol "+req.Symbol+" not tradable", nil)
	}

	acct, err := s.AccountSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if !acct.TradeAllowed {
		return Result{}, errs.Connection("trading not permitted on account", nil)
	}
	// Rough affordability guard only; the trade server's retcode is the
	// authoritative accept/reject.
	if acct.Balance < req.Volume*100 {
		return Result{}, errs.Execution(int(terminal.RetcodeNoMoney), "insufficient balance for requested volume")
	}

	tick, err := s.Tick(ctx, req.Symbol)
	if err != nil {
		return Result{}, err
	}

	volume := NormalizeVolume(req.Volume, info.VolumeMin, info.VolumeMax, info.VolumeStep)

	// Stops are floored to the instrument's minimum stop distance.
	minStop := float64(info.StopsLevel) * info.Point
	slDist := req.StopLossDistance
	if slDist > 0 && slDist < minStop {
		slDist = minStop
	}
	tpDist := req.TakeProfitDistance
	if tpDist > 0 && tpDist < minStop {
		tpDist = minStop
	}

	var price, sl, tp float64
	var orderType terminal.OrderType
	if req.Side == SideBuy {
		orderType = terminal.OrderBuy
		price = tick.Ask
		if slDist > 0 {
			sl = RoundPrice(price-slDist, info.Digits)
		}
		if tpDist > 0 {
			tp = RoundPrice(price+tpDist, info.Digits)
		}
	} else {
		orderType = terminal.OrderSell
		price = tick.Bid
		if slDist > 0 {
			sl = RoundPrice(price+slDist, info.Digits)
		}
		if tpDist > 0 {
			tp = RoundPrice(price-tpDist, info.Digits)
		}
	}

	supported := terminal.FillingSupport(info.FillingMask)
	candidates := terminal.PlacementCandidates(supported, req.Preferred, req.HasPreferred)

	var lastErr error
	for _, mode := range candidates {
		res, err := s.Send(ctx, terminal.OrderRequest{
			Action:     terminal.ActionDeal,
			Symbol:     req.Symbol,
			Volume:     volume,
			Type:       orderType,
			Price:      price,
			StopLoss:   sl,
			TakeProfit: tp,
			Deviation:  baseDeviation,
			Magic:      req.Magic,
			Comment:    req.Comment,
			Filling:    mode,
		})
		if err != nil {
			return Result{}, err
		}
		if res.Retcode.Success() {
			out := Result{
				OrderID:      res.Order,
				DealID:       res.Deal,
				FilledVolume: res.Volume,
				FilledPrice:  res.Price,
				StopLoss:     sl,
				TakeProfit:   tp,
				Filling:      mode,
				FillingName:  mode.String(),
			}
			x.record(ctx, s.AccountID(), "place", req.Symbol, string(req.Side), out.FilledVolume, out.FilledPrice, out.OrderID, out.DealID, mode, req.Comment)
			x.publish(events.TopicOrderPlaced, out)
			return out, nil
		}

		lastErr = errs.Execution(int(res.Retcode), res.Retcode.String())
		if terminal.Classify(res.Retcode) != terminal.ClassRetryable {
			break
		}
		log.Printf("trade %s: %s rejected with filling %s (%s), trying next mode",
			s.AccountID(), req.Symbol, mode, res.Retcode)
	}

	x.publish(events.TopicOrderRejected, lastErr.Error())
	return Result{}, lastErr
}

// ClosePosition resolves the position by ticket and submits the
// opposing order, retrying across the instrument's supported filling
// modes in fixed preference order. The price is refreshed and the
// slippage allowance widened on every attempt.
func (x *Executor) ClosePosition(ctx context.Context, s Session, req CloseRequest) (CloseResult, error) {
	if req.Ticket == 0 {
		return CloseResult{}, errs.Validation("missing ticket")
	}

	pos, err := s.FindPosition(ctx, req.Ticket)
	if err != nil {
		return CloseResult{}, err
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = pos.Symbol
	}

	info, err := s.EnsureSymbol(ctx, symbol)
	if err != nil {
		return CloseResult{}, err
	}
	if !info.Tradeable() {
		return CloseResult{}, errs.Symbol("symbol "+symbol+" not tradable", nil)
	}

	volume := req.Volume
	if volume <= 0 || volume > pos.Volume {
		volume = pos.Volume
	}
	volume = NormalizeVolume(volume, info.VolumeMin, info.VolumeMax, info.VolumeStep)

	positionSide := SideBuy
	closeType := terminal.OrderSell
	if pos.Type == terminal.PositionSell {
		positionSide = SideSell
		closeType = terminal.OrderBuy
	}

	candidates := terminal.CloseCandidates(terminal.FillingSupport(info.FillingMask))

	var lastErr error
	for attempt, mode := range candidates {
		tick, err := s.Tick(ctx, symbol)
		if err != nil {
			return CloseResult{}, err
		}
		price := tick.Bid
		if pos.Type == terminal.PositionSell {
			price = tick.Ask
		}

		res, err := s.Send(ctx, terminal.OrderRequest{
			Action:    terminal.ActionDeal,
			Symbol:    symbol,
			Volume:    volume,
			Type:      closeType,
			Price:     price,
			Position:  req.Ticket,
			Deviation: baseDeviation + attempt*10,
			Magic:     pos.Magic,
			Comment:   "close #" + strconv.FormatInt(req.Ticket, 10),
			Filling:   mode,
		})
		if err != nil {
			return CloseResult{}, err
		}
		if res.Retcode.Success() {
			out := CloseResult{
				DealID:       res.Deal,
				FilledVolume: res.Volume,
				FilledPrice:  res.Price,
				Profit:       pos.Profit,
				Symbol:       symbol,
				PositionSide: positionSide,
				Filling:      mode,
				FillingName:  mode.String(),
			}
			x.record(ctx, s.AccountID(), "close", symbol, string(positionSide), out.FilledVolume, out.FilledPrice, 0, out.DealID, mode, "close #"+strconv.FormatInt(req.Ticket, 10))
			x.publish(events.TopicOrderClosed, out)
			return out, nil
		}

		lastErr = errs.Execution(int(res.Retcode), res.Retcode.String())
		if terminal.Classify(res.Retcode) != terminal.ClassRetryable {
			break
		}
		log.Printf("trade %s: close #%d rejected with filling %s (%s), trying next mode",
			s.AccountID(), req.Ticket, mode, res.Retcode)
	}

	x.publish(events.TopicOrderRejected, lastErr.Error())
	return CloseResult{}, lastErr
}

func (x *Executor) record(ctx context.Context, accountID, kind, symbol, side string, volume, price float64, orderID, dealID int64, mode terminal.FillingMode, comment string) {
	if x.Journal == nil {
		return
	}
	err := x.Journal.RecordExecution(ctx, db.Execution{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      kind,
		Symbol:    symbol,
		Side:      side,
		Volume:    volume,
		Price:     price,
		OrderID:   orderID,
		DealID:    dealID,
		Filling:   mode.String(),
		Comment:   comment,
	})
	if err != nil {
		log.Printf("trade: journal write failed: %v", err)
	}
}

func (x *Executor) publish(topic events.Topic, payload any) {
	if x.Bus != nil {
		x.Bus.Publish(topic, payload)
	}
}
