// Package stream runs the per-symbol price poll workers for one
// account session: reference-counted subscriptions, quote dedup, and a
// consecutive-failure circuit breaker per symbol.
package stream

import (
	"context"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"mt5-gateway/internal/events"
	"mt5-gateway/internal/session"
)

// Source supplies quotes to the poll workers.
type Source interface {
	Price(ctx context.Context, symbol string) (session.Quote, error)
	Connected() bool
}

// Config tunes the poll workers.
type Config struct {
	PollInterval time.Duration // delay between polls per symbol
	PoolSize     int           // max concurrently polling symbols
	MaxFailures  int           // consecutive failures before the breaker trips
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		PoolSize:     5,
		MaxFailures:  5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PoolSize <= 0 {
		c.PoolSize = d.PoolSize
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	return c
}

// Engine manages poll workers for one account. A worker exists exactly
// while its symbol has at least one subscriber; cancellation is
// cooperative and observed once per poll iteration.
type Engine struct {
	accountID string
	src       Source
	bus       *events.Bus
	cfg       Config

	mu       sync.Mutex
	subs     map[string]map[string]struct{} // symbol -> subscriber ids
	workers  map[string]uint64              // symbol -> owning worker id
	workerID uint64
	stop     chan struct{}
	stopped  bool
	sem      chan struct{}
	wg       sync.WaitGroup
}

// New creates an engine bound to one account's price source.
func New(accountID string, src Source, bus *events.Bus, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		accountID: accountID,
		src:       src,
		bus:       bus,
		cfg:       cfg,
		subs:      make(map[string]map[string]struct{}),
		workers:   make(map[string]uint64),
		stop:      make(chan struct{}),
		sem:       make(chan struct{}, cfg.PoolSize),
	}
}

// Subscribe adds a subscriber to the symbol stream, starting a poll
// worker on the 0 -> 1 transition. Adding to a running stream is O(1).
func (e *Engine) Subscribe(symbol, subscriberID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		// Engine was drained by a disconnect; rearm for the new session.
		e.stop = make(chan struct{})
		e.stopped = false
	}

	set, ok := e.subs[symbol]
	if !ok {
		set = make(map[string]struct{})
		e.subs[symbol] = set
	}
	set[subscriberID] = struct{}{}

	if _, running := e.workers[symbol]; !running {
		e.workerID++
		id := e.workerID
		e.workers[symbol] = id
		e.wg.Add(1)
		go e.worker(symbol, id, e.stop)
	}
}

// Unsubscribe removes a subscriber. On the 1 -> 0 transition the
// worker's continuation condition goes false and it exits on its next
// loop check.
func (e *Engine) Unsubscribe(symbol, subscriberID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set, ok := e.subs[symbol]
	if !ok {
		return
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(e.subs, symbol)
		delete(e.workers, symbol)
	}
}

// UnsubscribeAll drops the subscriber from every symbol stream.
func (e *Engine) UnsubscribeAll(subscriberID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for symbol, set := range e.subs {
		delete(set, subscriberID)
		if len(set) == 0 {
			delete(e.subs, symbol)
			delete(e.workers, symbol)
		}
	}
}

// Subscribers returns the subscriber count for a symbol.
func (e *Engine) Subscribers(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[symbol])
}

// Active returns the symbols with at least one subscriber, sorted.
func (e *Engine) Active() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.subs))
	for symbol := range e.subs {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// ActiveCount returns the number of actively streamed symbols.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Shutdown signals every worker to stop, clears all subscriptions, and
// blocks until the workers have drained.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.stopped = true
	e.subs = make(map[string]map[string]struct{})
	e.workers = make(map[string]uint64)
	close(e.stop)
	e.mu.Unlock()

	e.wg.Wait()
}

// shouldRun is the worker continuation condition: this worker is still
// the symbol's registered owner, the session is connected, and no
// shutdown signal. The ownership check keeps a stale worker from
// piggybacking on a successor registered by a later subscribe.
func (e *Engine) shouldRun(symbol string, id uint64, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return false
	default:
	}
	e.mu.Lock()
	owner := e.workers[symbol] == id
	e.mu.Unlock()
	return owner && e.src.Connected()
}

// release clears the worker's registration on exit. A successor that
// already took over the symbol keeps its own entry.
func (e *Engine) release(symbol string, id uint64) {
	e.mu.Lock()
	if e.workers[symbol] == id {
		delete(e.workers, symbol)
	}
	e.mu.Unlock()
}

// trip removes the symbol's stream entirely, unsubscribing every
// subscriber at once.
func (e *Engine) trip(symbol string, id uint64) {
	e.mu.Lock()
	if e.workers[symbol] == id {
		delete(e.subs, symbol)
		delete(e.workers, symbol)
	}
	e.mu.Unlock()
}

func (e *Engine) worker(symbol string, id uint64, stop <-chan struct{}) {
	defer e.wg.Done()
	defer e.release(symbol, id)

	// Claim a pool slot before the first poll.
	select {
	case e.sem <- struct{}{}:
	case <-stop:
		return
	}
	defer func() { <-e.sem }()

	var lastSig string
	failures := 0
	topic := events.QuoteTopic(e.accountID, symbol)

	for e.shouldRun(symbol, id, stop) {
		q, err := e.src.Price(context.Background(), symbol)
		if err != nil {
			failures++
			if failures >= e.cfg.MaxFailures {
				// Circuit breaker: a persistently failing symbol must
				// not spin forever.
				log.Printf("stream %s/%s: %d consecutive failures, stopping stream: %v",
					e.accountID, symbol, failures, err)
				e.trip(symbol, id)
				return
			}
		} else {
			failures = 0
			sig := quoteSignature(q)
			if sig != lastSig {
				e.bus.Publish(topic, q)
				lastSig = sig
			}
		}

		select {
		case <-stop:
			return
		case <-time.After(e.cfg.PollInterval):
		}
	}
}

// quoteSignature is the dedup key: a quote is published only when the
// (bid, ask) pair changed since the last emission.
func quoteSignature(q session.Quote) string {
	return strconv.FormatFloat(q.Bid, 'f', -1, 64) + "-" + strconv.FormatFloat(q.Ask, 'f', -1, 64)
}
