// Package registry owns the account -> session map: sessions are
// created on demand, guaranteed single-instance per account, and
// evicted when idle.
package registry

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"mt5-gateway/internal/events"
	"mt5-gateway/internal/session"
	"mt5-gateway/internal/stream"
	"mt5-gateway/pkg/terminal"
)

// Factory builds the terminal connection for a new account session.
type Factory func(accountID string) terminal.Gateway

// Config tunes session lifecycle management.
type Config struct {
	SweepInterval time.Duration // how often idle sessions are scanned
	IdleTimeout   time.Duration // connected + no subscriptions for this long -> evict
	Stream        stream.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 5 * time.Minute,
		IdleTimeout:   30 * time.Minute,
		Stream:        stream.DefaultConfig(),
	}
}

// Handle bundles one account's session with its stream engine.
type Handle struct {
	Session *session.Session
	Streams *stream.Engine
}

// AccountStatus is one account's liveness report.
type AccountStatus struct {
	AccountID    string    `json:"account_id"`
	Connected    bool      `json:"connected"`
	Symbols      []string  `json:"active_subscriptions"`
	LastActivity time.Time `json:"last_activity"`
}

// Registry is the owner of all sessions. Its lock is independent of
// any session's internal lock: a blocked terminal call on one account
// never blocks resolution of another.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle

	factory Factory
	bus     *events.Bus
	cfg     Config

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a registry.
func New(factory Factory, bus *events.Bus, cfg Config) *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
		factory: factory,
		bus:     bus,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// Resolve returns the existing handle for the account or creates and
// registers a new one. Concurrent resolves for the same account always
// observe the same session instance.
func (r *Registry) Resolve(accountID string) *Handle {
	r.mu.RLock()
	if h, ok := r.handles[accountID]; ok {
		r.mu.RUnlock()
		return h
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if h, ok := r.handles[accountID]; ok {
		return h
	}

	sess := session.New(accountID, r.factory(accountID))
	eng := stream.New(accountID, sess, r.bus, r.cfg.Stream)
	sess.BindStreams(eng)

	h := &Handle{Session: sess, Streams: eng}
	r.handles[accountID] = h
	log.Printf("registry: created session for account %s", accountID)
	return h
}

// Lookup returns the handle without creating one.
func (r *Registry) Lookup(accountID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[accountID]
	return h, ok
}

// Remove disconnects and evicts the account's session. Idempotent.
func (r *Registry) Remove(ctx context.Context, accountID string) {
	r.mu.Lock()
	h, ok := r.handles[accountID]
	if ok {
		delete(r.handles, accountID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	// Disconnect outside the map lock; it blocks on worker drain.
	if err := h.Session.Disconnect(ctx); err != nil {
		log.Printf("registry: disconnect %s: %v", accountID, err)
	}
	log.Printf("registry: evicted session for account %s", accountID)
}

// Start launches the background idle sweep.
func (r *Registry) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.sweepIdle(ctx)
			}
		}
	}()
}

// Stop halts the sweep and disconnects every session.
func (r *Registry) Stop(ctx context.Context) {
	close(r.stopCh)
	r.wg.Wait()

	r.mu.RLock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(ctx, id)
	}
}

// sweepIdle evicts disconnected sessions and connected sessions that
// have had zero subscriptions for longer than the idle threshold.
// Sessions with any active subscription are never evicted.
func (r *Registry) sweepIdle(ctx context.Context) {
	r.mu.RLock()
	snapshot := make(map[string]*Handle, len(r.handles))
	for id, h := range r.handles {
		snapshot[id] = h
	}
	r.mu.RUnlock()

	now := time.Now()
	for id, h := range snapshot {
		switch {
		case !h.Session.Connected():
			r.Remove(ctx, id)
		case h.Streams.ActiveCount() == 0 && now.Sub(h.Session.LastActivity()) > r.cfg.IdleTimeout:
			log.Printf("registry: session %s idle for %s, evicting", id, now.Sub(h.Session.LastActivity()).Round(time.Second))
			r.Remove(ctx, id)
		}
	}
}

// Health reports per-account liveness.
func (r *Registry) Health() []AccountStatus {
	r.mu.RLock()
	snapshot := make(map[string]*Handle, len(r.handles))
	for id, h := range r.handles {
		snapshot[id] = h
	}
	r.mu.RUnlock()

	out := make([]AccountStatus, 0, len(snapshot))
	for id, h := range snapshot {
		out = append(out, AccountStatus{
			AccountID:    id,
			Connected:    h.Session.Connected(),
			Symbols:      h.Streams.Active(),
			LastActivity: h.Session.LastActivity(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
