package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
)

const evictEvery = time.Minute

// Registry hands out one orchestrator per session, each owning that
// session's cart. Sessions unused for IdleTTL are dropped from memory; their
// cart stays in the store and is reloaded on the next request.
type Registry struct {
	Store cart.Store
	// New builds an orchestrator around an opened cart session.
	New     func(sess *cart.Session) *Orchestrator
	IdleTTL time.Duration // defaults to the cart TTL
	Now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*entry
	lastEvict time.Time
}

type entry struct {
	o    *Orchestrator
	used time.Time
}

func (r *Registry) Get(ctx context.Context, sessionID string) (*Orchestrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastEvict) >= evictEvery {
		r.evictLocked(now)
	}
	if e, ok := r.sessions[sessionID]; ok {
		e.used = now
		return e.o, nil
	}
	sess, err := cart.Open(ctx, r.Store, sessionID)
	if err != nil {
		return nil, err
	}
	o := r.New(sess)
	o.Cart = sess
	if r.sessions == nil {
		r.sessions = make(map[string]*entry)
	}
	r.sessions[sessionID] = &entry{o: o, used: now}
	return o, nil
}

// Evict drops sessions idle for longer than IdleTTL and reports how many.
// A session with a checkout in progress is kept.
func (r *Registry) Evict() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(r.now())
}

func (r *Registry) evictLocked(now time.Time) int {
	r.lastEvict = now
	n := 0
	for id, e := range r.sessions {
		if now.Sub(e.used) > r.idleTTL() && !e.o.Busy() {
			delete(r.sessions, id)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Logout drops the session's cart and orchestrator.
func (r *Registry) Logout(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()
	if ok && e.o.Cart != nil {
		return e.o.Cart.Logout(ctx)
	}
	return r.Store.Delete(ctx, sessionID)
}

func (r *Registry) idleTTL() time.Duration {
	if r.IdleTTL > 0 {
		return r.IdleTTL
	}
	return redisx.TTLCart
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
