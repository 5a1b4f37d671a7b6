package syncpoll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/google/uuid"
)

const (
	DefaultCustomerInterval = 10 * time.Second
	DefaultStaffInterval    = 15 * time.Second
	// A view nobody has read or focused for this many intervals is closed.
	DefaultIdleIntervals = 30
	DefaultMaxPerSubject = 8
)

// Source is the read side of the backend order service.
type Source interface {
	ListOrders(ctx context.Context, customerID string) ([]orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	StaffOverview(ctx context.Context) (orders.StaffOverview, error)
	StaffDashboard(ctx context.Context, staffID string) (orders.StaffDashboard, error)
}

// Observer receives status changes noticed by any view.
type Observer interface {
	Observe(ctx context.Context, c Change)
}

type Kind string

const (
	KindCustomer Kind = "customer"
	KindOrder    Kind = "order"
	KindStaff    Kind = "staff"
)

// Views owns one polling loop per open view. Closing a view stops its timer.
// Views that go unread expire on their own, and opening more than
// MaxPerSubject views of one subject closes the least recently used.
type Views struct {
	Source           Source
	Observer         Observer // optional
	CustomerInterval time.Duration
	StaffInterval    time.Duration
	IdleIntervals    int
	MaxPerSubject    int
	Log              *slog.Logger

	mu    sync.Mutex
	views map[string]*view
}

type view struct {
	id      string
	kind    Kind
	subject string
	loop    *Loop
	cancel  context.CancelFunc
	done    chan struct{}

	orders *OrderBoard
	staff  *StaffBoard

	seen atomic.Int64 // unix nanos of the last open, read or focus

	mu      sync.Mutex
	lastErr error
}

func (vw *view) touch() { vw.seen.Store(time.Now().UnixNano()) }

func (vw *view) idleFor() time.Duration {
	return time.Since(time.Unix(0, vw.seen.Load()))
}

// Snapshot is what a polling view currently shows.
type Snapshot struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"kind"`
	Subject     string                 `json:"subject"`
	Orders      []orders.Order         `json:"orders,omitempty"`
	ActiveCount int                    `json:"active_count"`
	Overview    *orders.StaffOverview  `json:"overview,omitempty"`
	Dashboard   *orders.StaffDashboard `json:"dashboard,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Refreshes   int64                  `json:"refreshes"`
	Error       string                 `json:"error,omitempty"`
}

// OpenCustomer starts polling a customer's order list.
func (v *Views) OpenCustomer(ctx context.Context, customerID string) string {
	vw := &view{kind: KindCustomer, subject: customerID, orders: NewOrderBoard()}
	return v.open(ctx, vw, v.customerInterval(), func(ctx context.Context) error {
		list, err := v.Source.ListOrders(ctx, customerID)
		if err != nil {
			return err
		}
		v.observe(ctx, vw.orders.Replace(list))
		return nil
	})
}

// OpenOrder polls a single order's detail.
func (v *Views) OpenOrder(ctx context.Context, orderID string) string {
	vw := &view{kind: KindOrder, subject: orderID, orders: NewOrderBoard()}
	return v.open(ctx, vw, v.customerInterval(), func(ctx context.Context) error {
		o, err := v.Source.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		v.observe(ctx, vw.orders.Merge([]orders.Order{o}))
		return nil
	})
}

// OpenStaff polls the overview and, when staffID is set, that member's dashboard.
func (v *Views) OpenStaff(ctx context.Context, staffID string) string {
	vw := &view{kind: KindStaff, subject: staffID, staff: NewStaffBoard()}
	return v.open(ctx, vw, v.staffInterval(), func(ctx context.Context) error {
		ov, err := v.Source.StaffOverview(ctx)
		if err != nil {
			return err
		}
		var d orders.StaffDashboard
		if staffID != "" {
			if d, err = v.Source.StaffDashboard(ctx, staffID); err != nil {
				return err
			}
		}
		v.observe(ctx, vw.staff.Set(ov, d))
		return nil
	})
}

func (v *Views) open(parent context.Context, vw *view, interval time.Duration, fn func(ctx context.Context) error) string {
	vw.id = uuid.NewString()
	vw.touch()
	ctx, cancel := context.WithCancel(parent)
	vw.cancel = cancel
	vw.done = make(chan struct{})
	idle := interval * time.Duration(v.idleIntervals())
	vw.loop = NewLoop(interval, func(ctx context.Context) error {
		if vw.idleFor() > idle {
			v.expire(vw, "idle")
			return nil
		}
		err := fn(ctx)
		vw.mu.Lock()
		vw.lastErr = err
		vw.mu.Unlock()
		return err
	}, v.logger().With("view", vw.id, "kind", string(vw.kind)))

	v.mu.Lock()
	if v.views == nil {
		v.views = make(map[string]*view)
	}
	evicted := v.overflow(vw.kind, vw.subject)
	v.views[vw.id] = vw
	v.mu.Unlock()
	for _, old := range evicted {
		v.expire(old, "subject limit")
	}

	go func() {
		defer close(vw.done)
		vw.loop.Run(ctx)
	}()
	v.logger().Info("view opened", "view", vw.id, "kind", string(vw.kind), "subject", vw.subject)
	return vw.id
}

// overflow picks the least recently used views of a subject that must go to
// make room for one more. Callers hold v.mu.
func (v *Views) overflow(kind Kind, subject string) []*view {
	var same []*view
	for _, vw := range v.views {
		if vw.kind == kind && vw.subject == subject {
			same = append(same, vw)
		}
	}
	extra := len(same) - v.maxPerSubject() + 1
	if extra <= 0 {
		return nil
	}
	sort.Slice(same, func(i, j int) bool { return same[i].seen.Load() < same[j].seen.Load() })
	return same[:extra]
}

// expire drops a view without waiting for its loop, which may be the caller.
func (v *Views) expire(vw *view, reason string) {
	v.mu.Lock()
	_, ok := v.views[vw.id]
	delete(v.views, vw.id)
	v.mu.Unlock()
	if !ok {
		return
	}
	vw.cancel()
	v.logger().Info("view expired", "view", vw.id, "kind", string(vw.kind), "subject", vw.subject, "reason", reason)
}

// Focus refreshes a view right away, as when its window becomes visible again.
func (v *Views) Focus(id string) error {
	vw, err := v.get(id)
	if err != nil {
		return err
	}
	vw.touch()
	vw.loop.Focus()
	return nil
}

// Close stops a view's loop and waits for its last refresh.
func (v *Views) Close(id string) error {
	v.mu.Lock()
	vw, ok := v.views[id]
	delete(v.views, id)
	v.mu.Unlock()
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "views.close", "view %s not found", id)
	}
	vw.cancel()
	<-vw.done
	return nil
}

func (v *Views) CloseAll() {
	v.mu.Lock()
	ids := make([]string, 0, len(v.views))
	for id := range v.views {
		ids = append(ids, id)
	}
	v.mu.Unlock()
	for _, id := range ids {
		_ = v.Close(id)
	}
}

func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.views)
}

func (v *Views) Snapshot(id string) (Snapshot, error) {
	vw, err := v.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	vw.touch()
	runs, _ := vw.loop.Stats()
	s := Snapshot{ID: vw.id, Kind: vw.kind, Subject: vw.subject, Refreshes: runs}
	vw.mu.Lock()
	if vw.lastErr != nil {
		s.Error = vw.lastErr.Error()
	}
	vw.mu.Unlock()

	if vw.orders != nil {
		s.Orders = vw.orders.Orders()
		s.ActiveCount = len(vw.orders.Active())
		s.UpdatedAt = vw.orders.UpdatedAt()
	}
	if vw.staff != nil {
		ov, d := vw.staff.Overview(), vw.staff.Dashboard()
		s.Overview = &ov
		if vw.subject != "" {
			s.Dashboard = &d
		}
		s.Orders = vw.staff.Assigned.Orders()
		s.ActiveCount = vw.staff.ActiveCount()
		s.UpdatedAt = vw.staff.Assigned.UpdatedAt()
	}
	return s, nil
}

func (v *Views) get(id string) (*view, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	vw, ok := v.views[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "views.get", "view %s not found", id)
	}
	return vw, nil
}

func (v *Views) observe(ctx context.Context, changes []Change) {
	for _, c := range changes {
		if !c.Valid {
			v.logger().Warn("order status moved backwards", "order_id", c.OrderID, "from", c.From, "to", c.To)
		}
		if v.Observer != nil {
			v.Observer.Observe(ctx, c)
		}
	}
}

func (v *Views) customerInterval() time.Duration {
	if v.CustomerInterval > 0 {
		return v.CustomerInterval
	}
	return DefaultCustomerInterval
}

func (v *Views) staffInterval() time.Duration {
	if v.StaffInterval > 0 {
		return v.StaffInterval
	}
	return DefaultStaffInterval
}

func (v *Views) idleIntervals() int {
	if v.IdleIntervals > 0 {
		return v.IdleIntervals
	}
	return DefaultIdleIntervals
}

func (v *Views) maxPerSubject() int {
	if v.MaxPerSubject > 0 {
		return v.MaxPerSubject
	}
	return DefaultMaxPerSubject
}

func (v *Views) logger() *slog.Logger {
	if v.Log == nil {
		return logx.Nop()
	}
	return v.Log
}
