package terminal

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockGateway is an in-memory Gateway for local development and tests.
// Responses can be scripted per symbol; without a script it generates a
// simple random walk around the symbol's base price.
type MockGateway struct {
	mu sync.Mutex

	InitErr  error
	LoginErr error

	Account   AccountInfo
	Symbols   map[string]SymbolInfo
	Bars      map[string]Bar
	BasePrice map[string]float64

	tickScripts map[string][]Tick
	tickErrs    map[string]error
	retcodes    []Retcode

	positions map[int64]Position
	walk      map[string]float64
	nextID    int64

	initialized bool
	loggedIn    bool

	TickCalls  int
	SentOrders []OrderRequest
}

// NewMockGateway returns a gateway pre-seeded with one demo account and
// a few liquid symbols.
func NewMockGateway() *MockGateway {
	m := &MockGateway{
		Account: AccountInfo{
			Login:        10001,
			Balance:      100000,
			Equity:       100000,
			MarginFree:   100000,
			TradeAllowed: true,
			TradeExpert:  true,
		},
		Symbols:     make(map[string]SymbolInfo),
		Bars:        make(map[string]Bar),
		BasePrice:   make(map[string]float64),
		tickScripts: make(map[string][]Tick),
		tickErrs:    make(map[string]error),
		positions:   make(map[int64]Position),
		walk:        make(map[string]float64),
		nextID:      1000,
	}
	m.AddSymbol("EURUSD", 1.0850)
	m.AddSymbol("GBPUSD", 1.2700)
	m.AddSymbol("XAUUSD", 2350.0)
	return m
}

// AddSymbol registers a tradeable symbol with standard FX metadata.
func (m *MockGateway) AddSymbol(name string, base float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Symbols[name] = SymbolInfo{
		Name:        name,
		Point:       0.00001,
		Digits:      5,
		TradeMode:   TradeModeFull,
		VolumeMin:   0.01,
		VolumeMax:   100,
		VolumeStep:  0.01,
		StopsLevel:  10,
		FillingMask: maskFOK | maskIOC,
	}
	m.BasePrice[name] = base
}

// SetSymbolInfo overrides the metadata for a symbol.
func (m *MockGateway) SetSymbolInfo(info SymbolInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Symbols[info.Name] = info
}

// ScriptTicks queues tick responses for a symbol. When the script runs
// out the last tick repeats.
func (m *MockGateway) ScriptTicks(symbol string, ticks ...Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickScripts[symbol] = ticks
}

// FailTicks makes SymbolTick return err for the symbol until cleared.
func (m *MockGateway) FailTicks(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickErrs[symbol] = err
}

// ScriptRetcodes queues order-send retcodes. When the script runs out
// the last retcode repeats; with no script every order is done.
func (m *MockGateway) ScriptRetcodes(codes ...Retcode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retcodes = codes
}

// AddPosition seeds an open position.
func (m *MockGateway) AddPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.Ticket] = p
}

func (m *MockGateway) Initialize(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return m.InitErr
	}
	m.initialized = true
	return nil
}

func (m *MockGateway) Login(ctx context.Context, login int64, password, server string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoginErr != nil {
		return m.LoginErr
	}
	m.loggedIn = true
	return nil
}

func (m *MockGateway) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.loggedIn = false
	return nil
}

func (m *MockGateway) SymbolNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.Symbols))
	for name := range m.Symbols {
		names = append(names, name)
	}
	return names, nil
}

func (m *MockGateway) SymbolSelect(ctx context.Context, symbol string, enable bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Symbols[symbol]
	return ok, nil
}

func (m *MockGateway) SymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.Symbols[symbol]
	if !ok {
		return SymbolInfo{}, ErrSymbolNotFound
	}
	return info, nil
}

func (m *MockGateway) SymbolTick(ctx context.Context, symbol string) (Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TickCalls++

	if err := m.tickErrs[symbol]; err != nil {
		return Tick{}, err
	}
	if script := m.tickScripts[symbol]; len(script) > 0 {
		t := script[0]
		if len(script) > 1 {
			m.tickScripts[symbol] = script[1:]
		}
		return t, nil
	}

	base, ok := m.BasePrice[symbol]
	if !ok {
		return Tick{}, ErrNoTick
	}
	// Random walk around the base price.
	drift := m.walk[symbol] + (rand.Float64()*2-1)*base*0.0001
	m.walk[symbol] = drift
	bid := base + drift
	return Tick{Bid: bid, Ask: bid + base*0.00002, Time: time.Now()}, nil
}

func (m *MockGateway) LastBar(ctx context.Context, symbol string) (Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bar, ok := m.Bars[symbol]
	if !ok {
		return Bar{}, ErrNoBar
	}
	return bar, nil
}

func (m *MockGateway) OrderSend(ctx context.Context, req OrderRequest) (OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentOrders = append(m.SentOrders, req)

	code := RetcodeDone
	if len(m.retcodes) > 0 {
		code = m.retcodes[0]
		if len(m.retcodes) > 1 {
			m.retcodes = m.retcodes[1:]
		}
	}
	if !code.Success() {
		return OrderResult{Retcode: code, Comment: code.String()}, nil
	}

	m.nextID++
	res := OrderResult{
		Retcode: code,
		Order:   m.nextID,
		Deal:    m.nextID,
		Volume:  req.Volume,
		Price:   req.Price,
	}
	if req.Position != 0 {
		// Closing: shrink or drop the position.
		if pos, ok := m.positions[req.Position]; ok {
			pos.Volume -= req.Volume
			if pos.Volume <= 0 {
				delete(m.positions, req.Position)
			} else {
				m.positions[req.Position] = pos
			}
		}
	} else {
		m.positions[m.nextID] = Position{
			Ticket:    m.nextID,
			Symbol:    req.Symbol,
			Type:      PositionType(req.Type),
			Volume:    req.Volume,
			PriceOpen: req.Price,
			Magic:     req.Magic,
			Comment:   req.Comment,
			Time:      time.Now(),
		}
	}
	return res, nil
}

func (m *MockGateway) Positions(ctx context.Context) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockGateway) PositionByTicket(ctx context.Context, ticket int64) (Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[ticket]
	if !ok {
		return Position{}, ErrPositionNotFound
	}
	return p, nil
}

func (m *MockGateway) AccountInfo(ctx context.Context) (AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Account, nil
}
