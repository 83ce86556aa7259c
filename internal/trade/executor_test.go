package trade

import (
	"context"
	"testing"
	"time"

	"mt5-gateway/internal/errs"
	"mt5-gateway/internal/session"
	"mt5-gateway/pkg/terminal"
)

func newTestSession(t *testing.T) (*session.Session, *terminal.MockGateway) {
	t.Helper()
	mock := terminal.NewMockGateway()
	s := session.New("acct-1", mock)
	if err := s.Connect(context.Background(), "Demo-Server", 10001, "pass", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s, mock
}

func TestPlaceOrderSuccess(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08500, Ask: 1.08510, Time: time.Now()})

	x := &Executor{}
	res, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol: "EURUSD",
		Volume: 0.1,
		Side:   SideBuy,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.OrderID == 0 || res.DealID == 0 {
		t.Fatalf("missing order/deal ids: %+v", res)
	}
	if res.FilledVolume != 0.1 {
		t.Fatalf("filled volume = %v, want 0.1", res.FilledVolume)
	}
	if res.FilledPrice != 1.08510 {
		t.Fatalf("filled price = %v, want ask", res.FilledPrice)
	}
	if len(mock.SentOrders) != 1 {
		t.Fatalf("sent %d orders, want 1", len(mock.SentOrders))
	}
	if mock.SentOrders[0].Filling != terminal.FillingFOK {
		t.Fatalf("first attempt filling = %v, want FOK", mock.SentOrders[0].Filling)
	}
}

func TestPlaceOrderNormalizesSubmittedVolume(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08500, Ask: 1.08510, Time: time.Now()})

	x := &Executor{}
	// Below the 0.01 minimum; the submitted volume must be clamped up.
	_, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol: "EURUSD",
		Volume: 0.004,
		Side:   SideBuy,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if got := mock.SentOrders[0].Volume; got != 0.01 {
		t.Fatalf("submitted volume = %v, want clamped to 0.01", got)
	}
}

func TestPlaceOrderRetriesFillingModes(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08500, Ask: 1.08510, Time: time.Now()})
	mock.ScriptRetcodes(terminal.RetcodeInvalidFill, terminal.RetcodeDone)

	x := &Executor{}
	res, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol: "EURUSD",
		Volume: 0.1,
		Side:   SideBuy,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(mock.SentOrders) != 2 {
		t.Fatalf("sent %d orders, want 2", len(mock.SentOrders))
	}
	if mock.SentOrders[0].Filling != terminal.FillingFOK || mock.SentOrders[1].Filling != terminal.FillingIOC {
		t.Fatalf("attempt fillings = %v, %v, want FOK then IOC",
			mock.SentOrders[0].Filling, mock.SentOrders[1].Filling)
	}
	if res.FillingName != "IOC" {
		t.Fatalf("result filling = %q, want IOC", res.FillingName)
	}
}

func TestPlaceOrderTerminalFailureStopsRetry(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08500, Ask: 1.08510, Time: time.Now()})
	mock.ScriptRetcodes(terminal.RetcodeTradeDisabled)

	x := &Executor{}
	_, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol: "EURUSD",
		Volume: 0.1,
		Side:   SideSell,
	})
	if !errs.Is(err, errs.KindExecution) {
		t.Fatalf("error kind = %v, want execution", errs.KindOf(err))
	}
	if errs.CodeOf(err) != int(terminal.RetcodeTradeDisabled) {
		t.Fatalf("error code = %d, want %d", errs.CodeOf(err), terminal.RetcodeTradeDisabled)
	}
	if len(mock.SentOrders) != 1 {
		t.Fatalf("sent %d orders after terminal failure, want 1", len(mock.SentOrders))
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	s, _ := newTestSession(t)
	x := &Executor{}

	tests := []struct {
		name string
		req  Request
	}{
		{"missing symbol", Request{Volume: 0.1, Side: SideBuy}},
		{"bad side", Request{Symbol: "EURUSD", Volume: 0.1, Side: "HOLD"}},
		{"zero volume", Request{Symbol: "EURUSD", Side: SideBuy}},
		{"negative volume", Request{Symbol: "EURUSD", Volume: -1, Side: SideBuy}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.PlaceOrder(context.Background(), s, tt.req)
			if !errs.Is(err, errs.KindValidation) {
				t.Fatalf("error kind = %v, want validation", errs.KindOf(err))
			}
		})
	}
}

func TestPlaceOrderBalanceGuard(t *testing.T) {
	s, mock := newTestSession(t)

	x := &Executor{}
	_, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol: "EURUSD",
		Volume: 2000, // 2000 * 100 exceeds the mock's 100000 balance
		Side:   SideBuy,
	})
	if !errs.Is(err, errs.KindExecution) {
		t.Fatalf("error kind = %v, want execution", errs.KindOf(err))
	}
	if errs.CodeOf(err) != int(terminal.RetcodeNoMoney) {
		t.Fatalf("error code = %d, want no-money", errs.CodeOf(err))
	}
	if len(mock.SentOrders) != 0 {
		t.Fatalf("order reached the terminal despite balance guard")
	}
}

func TestPlaceOrderFloorsStopsToMinimum(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08500, Ask: 1.08510, Time: time.Now()})

	x := &Executor{}
	// StopsLevel 10 at point 0.00001 means the minimum distance is 0.0001.
	_, err := x.PlaceOrder(context.Background(), s, Request{
		Symbol:           "EURUSD",
		Volume:           0.1,
		Side:             SideBuy,
		StopLossDistance: 0.00005,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	sent := mock.SentOrders[0]
	if sent.StopLoss != 1.08500 {
		t.Fatalf("stop loss = %v, want 1.08500 (ask - min stop distance)", sent.StopLoss)
	}
}

func TestClosePositionFull(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08600, Ask: 1.08610, Time: time.Now()})
	mock.AddPosition(terminal.Position{
		Ticket: 555, Symbol: "EURUSD", Type: terminal.PositionBuy,
		Volume: 0.5, PriceOpen: 1.08000, Profit: 30, Magic: 7,
	})

	x := &Executor{}
	res, err := x.ClosePosition(context.Background(), s, CloseRequest{Ticket: 555})
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if res.FilledVolume != 0.5 {
		t.Fatalf("closed volume = %v, want the full 0.5", res.FilledVolume)
	}
	if res.PositionSide != SideBuy {
		t.Fatalf("position side = %v, want BUY", res.PositionSide)
	}
	if res.Profit != 30 {
		t.Fatalf("profit = %v, want 30", res.Profit)
	}

	sent := mock.SentOrders[0]
	if sent.Type != terminal.OrderSell {
		t.Fatalf("close order type = %v, want sell for a buy position", sent.Type)
	}
	if sent.Position != 555 {
		t.Fatalf("position ticket = %d, want 555", sent.Position)
	}
	if sent.Price != 1.08600 {
		t.Fatalf("close price = %v, want bid", sent.Price)
	}
	if sent.Magic != 7 {
		t.Fatalf("magic = %d, want the position's 7", sent.Magic)
	}
}

func TestClosePositionClampsVolume(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08600, Ask: 1.08610, Time: time.Now()})
	mock.AddPosition(terminal.Position{
		Ticket: 556, Symbol: "EURUSD", Type: terminal.PositionSell, Volume: 0.3,
	})

	x := &Executor{}
	res, err := x.ClosePosition(context.Background(), s, CloseRequest{Ticket: 556, Volume: 5})
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if res.FilledVolume != 0.3 {
		t.Fatalf("closed volume = %v, want clamped to 0.3", res.FilledVolume)
	}
	if mock.SentOrders[0].Type != terminal.OrderBuy {
		t.Fatalf("close order type = %v, want buy for a sell position", mock.SentOrders[0].Type)
	}
}

func TestClosePositionWidensDeviation(t *testing.T) {
	s, mock := newTestSession(t)
	mock.ScriptTicks("EURUSD", terminal.Tick{Bid: 1.08600, Ask: 1.08610, Time: time.Now()})
	mock.AddPosition(terminal.Position{
		Ticket: 557, Symbol: "EURUSD", Type: terminal.PositionBuy, Volume: 0.2,
	})
	mock.ScriptRetcodes(terminal.RetcodeInvalidFill, terminal.RetcodeInvalidFill, terminal.RetcodeDone)

	x := &Executor{}
	res, err := x.ClosePosition(context.Background(), s, CloseRequest{Ticket: 557})
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if len(mock.SentOrders) != 3 {
		t.Fatalf("sent %d orders, want 3", len(mock.SentOrders))
	}
	wantDeviation := []int{20, 30, 40}
	for i, sent := range mock.SentOrders {
		if sent.Deviation != wantDeviation[i] {
			t.Fatalf("attempt %d deviation = %d, want %d", i, sent.Deviation, wantDeviation[i])
		}
	}
	if res.FillingName != "RETURN" {
		t.Fatalf("final filling = %q, want RETURN", res.FillingName)
	}
}

func TestClosePositionNotFound(t *testing.T) {
	s, _ := newTestSession(t)
	x := &Executor{}

	_, err := x.ClosePosition(context.Background(), s, CloseRequest{Ticket: 99999})
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("error kind = %v, want not-found", errs.KindOf(err))
	}

	_, err = x.ClosePosition(context.Background(), s, CloseRequest{})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("error kind = %v, want validation for missing ticket", errs.KindOf(err))
	}
}
