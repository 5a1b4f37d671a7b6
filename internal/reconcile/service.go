package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	kafkax "github.com/ariefcatur/go-table-checkout/internal/kafka"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	OutcomeCaptured = "CAPTURED"
	OutcomeReleased = "RELEASED"
	OutcomePending  = "PENDING"
)

// Backend records the captured payment with the order service.
type Backend interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	ConfirmPayment(ctx context.Context, paymentID, transactionID string, providerData map[string]string) (orders.Payment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
}

// Service settles wallet reservations left pending by checkout, either from
// ReservationPending events or by sweeping the journal.
type Service struct {
	Reconciler payments.Reconciler
	Journal    payments.Journal
	Backend    Backend
	Redis      redis.Cmdable
	Events     EventPublisher
	Name       string
	Log        *slog.Logger
}

// HandleReservationPending is installed as the consumer handler. Errors are
// retried in place by the consumer; a reservation that is still pending is
// committed and left to the journal sweep.
func (s *Service) HandleReservationPending(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.EventType(m); t != "" && t != orders.EventReservationPending {
		return nil
	}
	env, err := kafkax.DecodeEnvelope(m)
	if err != nil {
		return kafkax.Permanent(err)
	}
	if env.EventType != orders.EventReservationPending {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.Name, env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.ReservationPendingPayload](env.Payload)
	if err != nil {
		return kafkax.Permanent(err)
	}
	outcome, err := s.Settle(ctx, p)
	if apperr.Is(err, apperr.KindNotFound) {
		s.logger().Warn("dropping unknown reservation", "order_id", p.OrderID, "transaction_id", p.TransactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if outcome == OutcomePending {
		s.logger().Info("reservation still pending, left to sweep", "order_id", p.OrderID, "transaction_id", p.TransactionID)
		return nil
	}
	if _, err := redisx.MarkSeen(ctx, s.Redis, s.Name, env.EventID); err != nil {
		s.logger().Warn("dedup mark failed", "event_id", env.EventID, "err", err)
	}
	return nil
}

// Settle drives one reservation to CAPTURED or RELEASED and reports the
// outcome. A captured hold is confirmed with the backend exactly once.
func (s *Service) Settle(ctx context.Context, p orders.ReservationPendingPayload) (string, error) {
	log := s.logger().With("order_id", p.OrderID, "transaction_id", p.TransactionID)

	result, err := s.Reconciler.Reconcile(ctx, p.OrderID)
	outcome := ""
	switch {
	case err == nil:
		outcome = OutcomeCaptured
	case apperr.Is(err, apperr.KindNotFound):
		// closed earlier, possibly by a checkout retry or a sweep
		outcome, result, err = s.closed(ctx, p.TransactionID)
		if err != nil {
			return "", err
		}
	case apperr.Is(err, apperr.KindGatewayDeclined):
		outcome = OutcomeReleased
	case apperr.Is(err, apperr.KindAmbiguousPending):
		outcome = OutcomePending
	default:
		return "", err
	}

	if outcome == OutcomeCaptured {
		paymentID, err := s.confirm(ctx, p, result)
		if err != nil {
			log.Error("backend confirm failed after capture", "payment_id", paymentID, "err", err)
			return "", err
		}
		p.PaymentID = paymentID
	}
	log.Info("reservation reconciled", "outcome", outcome)
	s.publish(ctx, p, outcome)
	return outcome, nil
}

// confirm records a captured hold with the backend. The journal row supplies
// the payment id when the event does not, and remembers that the backend
// has been told. An order that already left PENDING_PAYMENT is not
// confirmed again.
func (s *Service) confirm(ctx context.Context, p orders.ReservationPendingPayload, result payments.Result) (string, error) {
	txID := result.TransactionID
	if txID == "" {
		txID = p.TransactionID
	}
	paymentID := p.PaymentID
	journaled := false
	if s.Journal != nil && txID != "" {
		r, ok, err := s.Journal.Lookup(ctx, txID)
		if err != nil {
			return paymentID, err
		}
		if ok {
			if r.BackendConfirmed {
				return r.PaymentID, nil
			}
			if paymentID == "" {
				paymentID = r.PaymentID
			}
			journaled = true
		}
	}
	if paymentID == "" {
		s.logger().Warn("captured hold has no backend payment", "order_id", p.OrderID, "transaction_id", txID)
		return "", nil
	}

	order, err := s.Backend.GetOrder(ctx, p.OrderID)
	if err != nil {
		return paymentID, err
	}
	if order.Status == orders.StatusPendingPayment {
		if _, err := s.Backend.ConfirmPayment(ctx, paymentID, txID, result.ProviderData); err != nil {
			return paymentID, err
		}
	}
	if journaled {
		if err := s.Journal.MarkConfirmed(ctx, txID); err != nil {
			s.logger().Warn("journal mark confirmed failed", "transaction_id", txID, "err", err)
		}
	}
	return paymentID, nil
}

func (s *Service) closed(ctx context.Context, transactionID string) (string, payments.Result, error) {
	if s.Journal == nil || transactionID == "" {
		return "", payments.Result{}, apperr.Newf(apperr.KindNotFound, "reconcile.settle", "reservation %s unknown", transactionID)
	}
	r, ok, err := s.Journal.Lookup(ctx, transactionID)
	if err != nil {
		return "", payments.Result{}, err
	}
	if !ok {
		return "", payments.Result{}, apperr.Newf(apperr.KindNotFound, "reconcile.settle", "reservation %s unknown", transactionID)
	}
	switch r.State {
	case payments.ReservationCaptured:
		return OutcomeCaptured, r.Captured(), nil
	case payments.ReservationReleased:
		return OutcomeReleased, payments.Result{}, nil
	}
	return OutcomePending, payments.Result{}, nil
}

// Sweep settles journal rows older than age that still need work: open
// holds, and captured holds whose backend payment is unconfirmed. It returns
// how many were captured or released.
func (s *Service) Sweep(ctx context.Context, age time.Duration) (int, error) {
	rows, err := s.Journal.Unsettled(ctx, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, r := range rows {
		outcome, err := s.Settle(ctx, orders.ReservationPendingPayload{
			OrderID:       r.OrderID,
			PaymentID:     r.PaymentID,
			TransactionID: r.TransactionID,
			Amount:        r.Amount,
		})
		if err != nil {
			s.logger().Warn("sweep settle failed", "order_id", r.OrderID, "err", err)
			continue
		}
		if outcome != OutcomePending {
			settled++
		}
	}
	return settled, nil
}

func (s *Service) publish(ctx context.Context, p orders.ReservationPendingPayload, outcome string) {
	if s.Events == nil {
		return
	}
	env, err := orders.NewEnvelope(orders.EventReservationReconciled, s.Name, p.OrderID, orders.ReservationReconciledPayload{
		OrderID:       p.OrderID,
		PaymentID:     p.PaymentID,
		TransactionID: p.TransactionID,
		Outcome:       outcome,
	})
	if err == nil {
		err = s.Events.Publish(ctx, env)
	}
	if err != nil {
		s.logger().Warn("publish reconciled failed", "order_id", p.OrderID, "err", err)
	}
}

func (s *Service) logger() *slog.Logger {
	if s.Log == nil {
		return logx.Nop()
	}
	return s.Log
}
