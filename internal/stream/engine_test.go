package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mt5-gateway/internal/events"
	"mt5-gateway/internal/session"
)

type fakeSource struct {
	mu     sync.Mutex
	quotes []session.Quote
	idx    int
	err    error
	conn   bool
	calls  int
}

func (f *fakeSource) Price(ctx context.Context, symbol string) (session.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return session.Quote{}, f.err
	}
	q := f.quotes[f.idx]
	if f.idx < len(f.quotes)-1 {
		f.idx++
	}
	return q, nil
}

func (f *fakeSource) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) setConnected(conn bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
}

// countingSource tracks how many polls run concurrently. Each poll
// holds its slot long enough for overlapping workers to collide.
type countingSource struct {
	mu       sync.Mutex
	inflight int
	peak     int
	total    int
}

func (c *countingSource) Price(ctx context.Context, symbol string) (session.Quote, error) {
	c.mu.Lock()
	c.inflight++
	if c.inflight > c.peak {
		c.peak = c.inflight
	}
	c.mu.Unlock()

	time.Sleep(3 * time.Millisecond)

	c.mu.Lock()
	c.inflight--
	c.total++
	n := c.total
	c.mu.Unlock()
	return session.Quote{Symbol: symbol, Bid: float64(n), Ask: float64(n) + 1}, nil
}

func (c *countingSource) Connected() bool { return true }

func (c *countingSource) totalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *countingSource) resetPeak() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peak = c.inflight
}

func (c *countingSource) peakCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func testConfig() Config {
	return Config{PollInterval: time.Millisecond, PoolSize: 5, MaxFailures: 3}
}

func TestWorkerDedupsIdenticalQuotes(t *testing.T) {
	src := &fakeSource{
		conn: true,
		quotes: []session.Quote{
			{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0851},
			{Symbol: "EURUSD", Bid: 1.0850, Ask: 1.0851},
			{Symbol: "EURUSD", Bid: 1.0852, Ask: 1.0853},
		},
	}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.QuoteTopic("acct-1", "EURUSD"), 64)
	defer unsub()

	e := New("acct-1", src, bus, testConfig())
	defer e.Shutdown()
	e.Subscribe("EURUSD", "client-1")

	// Let the worker poll well past the end of the script; the sticky
	// last quote must not be re-published.
	waitFor(t, time.Second, func() bool { return src.callCount() >= 10 })
	e.Shutdown()

	got := 0
	for i, n := 0, len(ch); i < n; i++ {
		<-ch
		got++
	}
	if got != 2 {
		t.Fatalf("published %d quotes, want 2 distinct (bid, ask) pairs", got)
	}
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	src := &fakeSource{conn: true, err: errors.New("no price")}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	e.Subscribe("EURUSD", "client-1")
	waitFor(t, time.Second, func() bool { return e.ActiveCount() == 0 })

	if src.callCount() > 3 {
		t.Fatalf("worker polled %d times after tripping, want exactly MaxFailures", src.callCount())
	}
	if e.Subscribers("EURUSD") != 0 {
		t.Fatal("tripping must drop every subscriber for the symbol")
	}
}

func TestSharedWorkerAcrossSubscribers(t *testing.T) {
	src := &fakeSource{conn: true, quotes: []session.Quote{{Symbol: "EURUSD", Bid: 1, Ask: 2}}}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	e.Subscribe("EURUSD", "client-1")
	e.Subscribe("EURUSD", "client-2")

	if got := e.Subscribers("EURUSD"); got != 2 {
		t.Fatalf("subscribers = %d, want 2", got)
	}
	if got := e.ActiveCount(); got != 1 {
		t.Fatalf("active symbols = %d, want 1", got)
	}

	// Losing one subscriber keeps the stream alive.
	e.Unsubscribe("EURUSD", "client-1")
	if got := e.ActiveCount(); got != 1 {
		t.Fatalf("active symbols after partial unsubscribe = %d, want 1", got)
	}

	// Losing the last subscriber stops the worker.
	e.Unsubscribe("EURUSD", "client-2")
	if got := e.ActiveCount(); got != 0 {
		t.Fatalf("active symbols after last unsubscribe = %d, want 0", got)
	}

	waitFor(t, time.Second, func() bool {
		before := src.callCount()
		time.Sleep(10 * time.Millisecond)
		return src.callCount() == before
	})
}

func TestUnsubscribeAll(t *testing.T) {
	src := &fakeSource{conn: true, quotes: []session.Quote{{Bid: 1, Ask: 2}}}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	e.Subscribe("EURUSD", "client-1")
	e.Subscribe("GBPUSD", "client-1")
	e.Subscribe("GBPUSD", "client-2")

	e.UnsubscribeAll("client-1")
	if e.Subscribers("EURUSD") != 0 {
		t.Fatal("EURUSD should have no subscribers left")
	}
	if e.Subscribers("GBPUSD") != 1 {
		t.Fatalf("GBPUSD subscribers = %d, want 1", e.Subscribers("GBPUSD"))
	}
}

func TestShutdownDrainsAndRearms(t *testing.T) {
	src := &fakeSource{conn: true, quotes: []session.Quote{{Bid: 1, Ask: 2}}}
	e := New("acct-1", src, events.NewBus(), testConfig())

	e.Subscribe("EURUSD", "client-1")
	waitFor(t, time.Second, func() bool { return src.callCount() > 0 })

	e.Shutdown()
	if e.ActiveCount() != 0 {
		t.Fatal("shutdown must clear all subscriptions")
	}

	// A new subscribe after shutdown restarts polling.
	before := src.callCount()
	e.Subscribe("EURUSD", "client-1")
	defer e.Shutdown()
	waitFor(t, time.Second, func() bool { return src.callCount() > before })
}

func TestResubscribeDoesNotDuplicateWorker(t *testing.T) {
	src := &countingSource{}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	e.Subscribe("EURUSD", "client-1")
	waitFor(t, time.Second, func() bool { return src.totalCount() >= 1 })

	// Drop and re-add while the old worker may still be mid-iteration;
	// the old worker must cede the symbol to its successor.
	e.Unsubscribe("EURUSD", "client-1")
	e.Subscribe("EURUSD", "client-2")

	// Give the displaced worker time to observe it lost ownership.
	time.Sleep(20 * time.Millisecond)
	src.resetPeak()

	before := src.totalCount()
	waitFor(t, time.Second, func() bool { return src.totalCount() >= before+5 })
	if got := src.peakCount(); got != 1 {
		t.Fatalf("%d workers polled the symbol concurrently, want 1", got)
	}
}

func TestWorkerReleasesSymbolOnDisconnectedExit(t *testing.T) {
	src := &fakeSource{conn: false, quotes: []session.Quote{{Bid: 1, Ask: 2}}}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	// Subscribe racing a disconnect: the worker starts, sees the source
	// disconnected, and must deregister itself on the way out.
	e.Subscribe("EURUSD", "client-1")
	waitFor(t, time.Second, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		_, running := e.workers["EURUSD"]
		return !running
	})
	if src.callCount() != 0 {
		t.Fatalf("disconnected worker polled %d times, want 0", src.callCount())
	}

	// After reconnect a fresh subscribe must spawn a live worker again.
	src.setConnected(true)
	e.Subscribe("EURUSD", "client-2")
	waitFor(t, time.Second, func() bool { return src.callCount() > 0 })

	if got := e.Subscribers("EURUSD"); got != 2 {
		t.Fatalf("subscribers = %d, want both retained", got)
	}
}

func TestActiveSorted(t *testing.T) {
	src := &fakeSource{conn: true, quotes: []session.Quote{{Bid: 1, Ask: 2}}}
	e := New("acct-1", src, events.NewBus(), testConfig())
	defer e.Shutdown()

	e.Subscribe("XAUUSD", "c")
	e.Subscribe("EURUSD", "c")
	e.Subscribe("GBPUSD", "c")

	got := e.Active()
	want := []string{"EURUSD", "GBPUSD", "XAUUSD"}
	if len(got) != len(want) {
		t.Fatalf("active = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active = %v, want %v", got, want)
		}
	}
}
