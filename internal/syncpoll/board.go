package syncpoll

import (
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

// Change is a status difference seen between two fetches. Valid is false
// when the new status cannot follow the old one through legal transitions.
type Change struct {
	OrderID string        `json:"order_id"`
	From    orders.Status `json:"from"`
	To      orders.Status `json:"to"`
	Valid   bool          `json:"valid"`
}

// OrderBoard holds the last fetched order collection, keyed by id.
type OrderBoard struct {
	mu        sync.RWMutex
	byID      map[string]orders.Order
	updatedAt time.Time
}

func NewOrderBoard() *OrderBoard {
	return &OrderBoard{byID: make(map[string]orders.Order)}
}

// Replace swaps in a full collection; orders missing from list are dropped.
func (b *OrderBoard) Replace(list []orders.Order) []Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	changes := b.diff(list)
	b.byID = make(map[string]orders.Order, len(list))
	for _, o := range list {
		b.byID[o.ID] = o
	}
	b.updatedAt = time.Now()
	return changes
}

// Merge upserts list by id and keeps everything else.
func (b *OrderBoard) Merge(list []orders.Order) []Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	changes := b.diff(list)
	for _, o := range list {
		b.byID[o.ID] = o
	}
	b.updatedAt = time.Now()
	return changes
}

func (b *OrderBoard) diff(list []orders.Order) []Change {
	var out []Change
	for _, o := range list {
		prev, ok := b.byID[o.ID]
		if !ok || prev.Status == o.Status {
			continue
		}
		out = append(out, Change{
			OrderID: o.ID,
			From:    prev.Status,
			To:      o.Status,
			Valid:   orders.Reachable(prev.Status, o.Status),
		})
	}
	return out
}

func (b *OrderBoard) Get(id string) (orders.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byID[id]
	return o, ok
}

// Orders lists newest first.
func (b *OrderBoard) Orders() []orders.Order {
	return b.filter(func(orders.Status) bool { return true })
}

func (b *OrderBoard) Active() []orders.Order { return b.filter(orders.IsActive) }

func (b *OrderBoard) Terminal() []orders.Order { return b.filter(orders.IsTerminal) }

func (b *OrderBoard) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

func (b *OrderBoard) filter(keep func(orders.Status) bool) []orders.Order {
	b.mu.RLock()
	out := make([]orders.Order, 0, len(b.byID))
	for _, o := range b.byID {
		if keep(o.Status) {
			out = append(out, o)
		}
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StaffBoard is the staff dashboard: overview counts plus the orders
// assigned to one staff member.
type StaffBoard struct {
	mu        sync.RWMutex
	overview  orders.StaffOverview
	dashboard orders.StaffDashboard
	Assigned  *OrderBoard
}

func NewStaffBoard() *StaffBoard {
	return &StaffBoard{Assigned: NewOrderBoard()}
}

// Set stores a fetched snapshot and returns status changes among the
// assigned orders.
func (s *StaffBoard) Set(ov orders.StaffOverview, d orders.StaffDashboard) []Change {
	s.mu.Lock()
	s.overview, s.dashboard = ov, d
	s.mu.Unlock()
	return s.Assigned.Replace(d.AssignedOrders)
}

func (s *StaffBoard) Overview() orders.StaffOverview {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overview
}

func (s *StaffBoard) Dashboard() orders.StaffDashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dashboard
}

// ActiveCount uses the same classification as the customer view.
func (s *StaffBoard) ActiveCount() int {
	return s.Overview().ActiveCount()
}
