package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
)

type ReservationState string

const (
	ReservationOpen     ReservationState = "OPEN"
	ReservationCaptured ReservationState = "CAPTURED"
	ReservationReleased ReservationState = "RELEASED"
)

// Reservation is a provisional wallet hold that has not been captured yet.
type Reservation struct {
	OrderID            string           `json:"order_id"`
	TransactionID      string           `json:"transaction_id"`
	TradeNo            string           `json:"trade_no"`
	ConfirmationHandle string           `json:"confirmation_handle,omitempty"`
	PaymentURL         string           `json:"payment_url,omitempty"`
	Amount             int64            `json:"amount"`
	Currency           string           `json:"currency"`
	PaymentID          string           `json:"payment_id,omitempty"` // backend payment the hold settles
	State              ReservationState `json:"state"`
	BackendConfirmed   bool             `json:"backend_confirmed"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Journal records wallet reservations before they are confirmed. At most one
// OPEN reservation exists per order.
type Journal interface {
	Record(ctx context.Context, r Reservation) error
	Open(ctx context.Context, orderID string) (Reservation, bool, error)
	// ForOrder returns the order's latest reservation in state.
	ForOrder(ctx context.Context, orderID string, state ReservationState) (Reservation, bool, error)
	Resolve(ctx context.Context, transactionID string, state ReservationState) error
	Lookup(ctx context.Context, transactionID string) (Reservation, bool, error)
	// Unsettled lists reservations created before the cutoff that still need
	// work: OPEN holds, and CAPTURED holds whose backend payment has not been
	// confirmed.
	Unsettled(ctx context.Context, before time.Time) ([]Reservation, error)
	// MarkConfirmed records that the backend payment for a captured hold is
	// confirmed.
	MarkConfirmed(ctx context.Context, transactionID string) error
}

func (r Reservation) unsettled() bool {
	return r.State == ReservationOpen || (r.State == ReservationCaptured && r.PaymentID != "" && !r.BackendConfirmed)
}

func errOpenExists(orderID string) error {
	return apperr.Newf(apperr.KindAmbiguousPending, "journal.record", "order %s already has an open reservation", orderID)
}

type MemoryJournal struct {
	mu   sync.Mutex
	byTx map[string]Reservation
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{byTx: make(map[string]Reservation)}
}

func (j *MemoryJournal) Record(_ context.Context, r Reservation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, cur := range j.byTx {
		if cur.OrderID == r.OrderID && cur.State == ReservationOpen {
			return errOpenExists(r.OrderID)
		}
	}
	now := time.Now().UTC()
	r.State = ReservationOpen
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	j.byTx[r.TransactionID] = r
	return nil
}

func (j *MemoryJournal) Open(_ context.Context, orderID string) (Reservation, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, r := range j.byTx {
		if r.OrderID == orderID && r.State == ReservationOpen {
			return r, true, nil
		}
	}
	return Reservation{}, false, nil
}

// Resolve closes an open reservation. Resolving one already closed is a no-op.
func (j *MemoryJournal) Resolve(_ context.Context, transactionID string, state ReservationState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.byTx[transactionID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "journal.resolve", "reservation %s not found", transactionID)
	}
	if r.State != ReservationOpen {
		return nil
	}
	r.State = state
	r.UpdatedAt = time.Now().UTC()
	j.byTx[transactionID] = r
	return nil
}

func (j *MemoryJournal) Lookup(_ context.Context, transactionID string) (Reservation, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.byTx[transactionID]
	return r, ok, nil
}

func (j *MemoryJournal) ForOrder(_ context.Context, orderID string, state ReservationState) (Reservation, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var (
		found Reservation
		ok    bool
	)
	for _, r := range j.byTx {
		if r.OrderID != orderID || r.State != state {
			continue
		}
		if !ok || r.UpdatedAt.After(found.UpdatedAt) {
			found, ok = r, true
		}
	}
	return found, ok, nil
}

func (j *MemoryJournal) MarkConfirmed(_ context.Context, transactionID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.byTx[transactionID]
	if !ok {
		return apperr.Newf(apperr.KindNotFound, "journal.mark_confirmed", "reservation %s not found", transactionID)
	}
	r.BackendConfirmed = true
	r.UpdatedAt = time.Now().UTC()
	j.byTx[transactionID] = r
	return nil
}

func (j *MemoryJournal) Unsettled(_ context.Context, before time.Time) ([]Reservation, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []Reservation
	for _, r := range j.byTx {
		if r.unsettled() && r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}
