package syncpoll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/logx"
)

// Loop refreshes on a fixed interval and whenever its view regains focus.
// A refresh already in flight swallows new triggers instead of stacking them.
type Loop struct {
	interval time.Duration
	fn       func(ctx context.Context) error
	log      *slog.Logger

	focus    chan struct{}
	inflight atomic.Bool
	running  sync.Mutex // held for the duration of a refresh

	runs      atomic.Int64
	coalesced atomic.Int64
}

func NewLoop(interval time.Duration, fn func(ctx context.Context) error, log *slog.Logger) *Loop {
	if log == nil {
		log = logx.Nop()
	}
	return &Loop{interval: interval, fn: fn, log: log, focus: make(chan struct{}, 1)}
}

// Run refreshes immediately, then on every tick or focus signal until ctx
// ends. It returns once the last refresh has finished.
func (l *Loop) Run(ctx context.Context) {
	t := time.NewTicker(l.interval)
	defer t.Stop()

	l.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			// wait out the in-flight refresh
			l.running.Lock()
			l.running.Unlock()
			return
		case <-t.C:
			l.Refresh(ctx)
		case <-l.focus:
			l.Refresh(ctx)
		}
	}
}

// Focus asks for an immediate refresh. It never blocks.
func (l *Loop) Focus() {
	select {
	case l.focus <- struct{}{}:
	default:
	}
}

// Refresh starts an asynchronous refresh and reports whether it did; false
// means one was already running.
func (l *Loop) Refresh(ctx context.Context) bool {
	if !l.inflight.CompareAndSwap(false, true) {
		l.coalesced.Add(1)
		return false
	}
	l.running.Lock()
	go func() {
		err := l.fn(ctx)
		l.running.Unlock()
		l.inflight.Store(false)
		// counted only once a new refresh can start
		l.runs.Add(1)
		if err != nil && ctx.Err() == nil {
			l.log.Warn("refresh failed", "err", err)
		}
	}()
	return true
}

// Stats returns completed refreshes and suppressed triggers.
func (l *Loop) Stats() (runs, coalesced int64) {
	return l.runs.Load(), l.coalesced.Load()
}
