package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated          = "OrderCreated"
	EventPaymentAuthorized     = "PaymentAuthorized"
	EventPaymentFailed         = "PaymentFailed"
	EventReservationPending    = "ReservationPending"
	EventReservationReconciled = "ReservationReconciled"
	EventOrderStatusObserved   = "OrderStatusObserved"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in a v1 envelope correlated to orderID.
func NewEnvelope(eventType, producer, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type OrderCreatedPayload struct {
	OrderID        string        `json:"order_id"`
	TableNumber    string        `json:"table_number"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	TotalAmount    int64         `json:"total_amount"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type PaymentAuthorizedPayload struct {
	OrderID       string        `json:"order_id"`
	PaymentID     string        `json:"payment_id"`
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transaction_id"`
	Amount        int64         `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID   string        `json:"order_id"`
	PaymentID string        `json:"payment_id"`
	Method    PaymentMethod `json:"method"`
	Kind      string        `json:"kind"`
	Phase     string        `json:"phase,omitempty"`
	Reason    string        `json:"reason"`
}

// ReservationPendingPayload is emitted when a two-phase wallet reservation
// exists but its confirmation outcome is unknown.
type ReservationPendingPayload struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
}

type ReservationReconciledPayload struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"` // CAPTURED | RELEASED | PENDING
}

type OrderStatusObservedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Valid   bool   `json:"valid"`
}
