package checkout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
)

type State string

const (
	StateIdle              State = "IDLE"
	StateCreatingOrder     State = "CREATING_ORDER"
	StateCreatingPayment   State = "CREATING_PAYMENT"
	StateProcessingPayment State = "PROCESSING_PAYMENT"
	StateComplete          State = "COMPLETE"
	StateFailed            State = "FAILED"
)

// OrderAPI is the slice of the backend the orchestrator drives.
type OrderAPI interface {
	CreateOrder(ctx context.Context, draft orders.OrderDraft, idempotencyKey string) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	CreatePayment(ctx context.Context, orderID string, method orders.PaymentMethod) (orders.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID, transactionID string, providerData map[string]string) (orders.Payment, error)
}

// Orchestrator runs one session's checkout. At most one Submit or
// RetryPayment runs at a time; a concurrent call is rejected, not queued.
type Orchestrator struct {
	API      OrderAPI
	Gateways *payments.Registry
	Cart     *cart.Session
	Guard    Guard // optional
	Events   EventPublisher
	Log      *slog.Logger
	Window   time.Duration
	Service  string
	Now      func() time.Time

	mu      sync.Mutex
	busy    bool
	state   State
	order   *orders.Order   // retained while its payment is outstanding
	payment *orders.Payment // last payment record for order
	result  *payments.Result
	lastErr *CheckoutError
}

// Snapshot is the orchestrator's externally visible state.
type Snapshot struct {
	State   State           `json:"state"`
	Order   *orders.Order   `json:"order,omitempty"`
	Payment *orders.Payment `json:"payment,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Step    string          `json:"step,omitempty"`
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

// Busy reports whether a Submit or RetryPayment is running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{State: o.state}
	if s.State == "" {
		s.State = StateIdle
	}
	if o.order != nil {
		cp := *o.order
		s.Order = &cp
	}
	if o.payment != nil {
		cp := *o.payment
		s.Payment = &cp
	}
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
		s.Kind = o.lastErr.Kind.String()
		s.Step = o.lastErr.Step()
	}
	return s
}

// Submit validates the draft, creates the order and its payment, runs the
// gateway and confirms the payment. The cart is cleared only on success.
// On a payment failure the order is kept so RetryPayment can finish it.
func (o *Orchestrator) Submit(ctx context.Context, draft orders.OrderDraft) (string, error) {
	if err := o.begin("checkout.submit"); err != nil {
		return "", err
	}
	id, err := o.submit(ctx, draft)
	o.finish(err)
	return id, err
}

// RetryPayment retries the retained order's payment, optionally with another
// method. The payment record is reused when the method is unchanged.
func (o *Orchestrator) RetryPayment(ctx context.Context, method orders.PaymentMethod) (string, error) {
	if err := o.begin("checkout.retry_payment"); err != nil {
		return "", err
	}
	o.mu.Lock()
	order := o.order
	o.mu.Unlock()

	var (
		id  string
		err error
	)
	if order == nil {
		err = &CheckoutError{
			Kind:  apperr.KindValidation,
			Stage: StageCreatePayment,
			Err:   apperr.New(apperr.KindValidation, "checkout.retry_payment", "no order awaiting payment"),
		}
	} else if !method.Valid() {
		err = failure(StageValidate, order.ID, "", apperr.Validation("checkout.retry_payment", "payment_method", "unknown method"))
	} else {
		id, err = o.retry(ctx, *order, method)
	}
	o.finish(err)
	return id, err
}

// retry re-reads the order first: a reconciler or another tab may have
// settled or cancelled it since the last attempt.
func (o *Orchestrator) retry(ctx context.Context, order orders.Order, method orders.PaymentMethod) (string, error) {
	current, err := o.API.GetOrder(ctx, order.ID)
	if err != nil {
		return "", failure(StageCreatePayment, order.ID, "", err)
	}
	switch current.Status {
	case orders.StatusPendingPayment:
		return o.pay(ctx, current, method)
	case orders.StatusCancelled:
		o.mu.Lock()
		o.order, o.payment, o.result = nil, nil, nil
		o.mu.Unlock()
		return "", failure(StageCreatePayment, order.ID, "", apperr.Newf(apperr.KindInvalidTransition,
			"checkout.retry_payment", "order %s was cancelled", order.ID))
	}
	o.logger().Info("payment already settled", "order_id", order.ID, "status", current.Status)
	o.mu.Lock()
	o.order, o.result = nil, nil
	o.mu.Unlock()
	o.clearCart(ctx)
	return order.ID, nil
}

func (o *Orchestrator) begin(op string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		var orderID string
		if o.order != nil {
			orderID = o.order.ID
		}
		return &CheckoutError{
			Kind:    apperr.KindInFlight,
			OrderID: orderID,
			Stage:   StageValidate,
			Err:     apperr.New(apperr.KindInFlight, op, "a checkout attempt is already in progress"),
		}
	}
	o.busy = true
	o.lastErr = nil
	return nil
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	if err == nil {
		o.state = StateComplete
		return
	}
	o.state = StateFailed
	var ce *CheckoutError
	if errors.As(err, &ce) {
		o.lastErr = ce
	}
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) submit(ctx context.Context, draft orders.OrderDraft) (string, error) {
	if err := orders.ValidateDraft(draft); err != nil {
		return "", failure(StageValidate, "", "", err)
	}
	totals, err := cart.Calculate(draft.Items)
	if err != nil {
		return "", failure(StageValidate, "", "", err)
	}

	// a new submission supersedes any order retained from an earlier attempt
	o.mu.Lock()
	o.order, o.payment, o.result = nil, nil, nil
	o.mu.Unlock()

	key := IdempotencyKey(o.sessionID(), draft, o.now(), o.Window)
	if o.Guard != nil {
		existing, claimed, err := o.Guard.Claim(ctx, key)
		if err != nil {
			o.logger().Warn("idempotency claim failed, relying on backend key", "err", err)
		} else if !claimed {
			return o.adopt(ctx, existing)
		}
	}

	o.setState(StateCreatingOrder)
	order, err := o.API.CreateOrder(ctx, draft, key)
	if err != nil {
		if o.Guard != nil {
			_ = o.Guard.Release(ctx, key)
		}
		return "", failure(StageCreateOrder, "", "", err)
	}
	if o.Guard != nil {
		if err := o.Guard.Complete(ctx, key, order.ID); err != nil {
			o.logger().Warn("idempotency record failed", "order_id", order.ID, "err", err)
		}
	}
	o.logger().Info("order created", "order_id", order.ID, "table", order.TableNumber, "total", order.TotalAmount)
	o.emit(ctx, orders.EventOrderCreated, order.ID, orders.OrderCreatedPayload{
		OrderID:        order.ID,
		TableNumber:    order.TableNumber,
		PaymentMethod:  draft.PaymentMethod,
		TotalAmount:    order.TotalAmount,
		IdempotencyKey: key,
	})

	if !totals.Matches(order) {
		return "", failure(StageVerifyTotals, order.ID, "", apperr.Newf(apperr.KindValidation, "checkout.verify_totals",
			"backend total %d (subtotal %d, tax %d, service %d) disagrees with cart total %d",
			order.TotalAmount, order.Subtotal, order.Tax, order.ServiceCharge, totals.TotalAmount))
	}

	o.mu.Lock()
	o.order = &order
	o.mu.Unlock()
	return o.pay(ctx, order, draft.PaymentMethod)
}

// adopt handles a submit whose key was already claimed by an earlier one.
func (o *Orchestrator) adopt(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", &CheckoutError{
			Kind:  apperr.KindInFlight,
			Stage: StageIdempotency,
			Err:   apperr.New(apperr.KindInFlight, "checkout.submit", "this cart is already being submitted"),
		}
	}
	order, err := o.API.GetOrder(ctx, orderID)
	if err != nil {
		return orderID, failure(StageIdempotency, orderID, "", err)
	}
	if order.Status != orders.StatusPendingPayment {
		o.logger().Info("duplicate submit of a settled order", "order_id", orderID, "status", order.Status)
		o.clearCart(ctx)
		return orderID, nil
	}
	o.mu.Lock()
	o.order = &order
	o.mu.Unlock()
	return orderID, &CheckoutError{
		Kind:    apperr.KindInFlight,
		OrderID: orderID,
		Stage:   StageIdempotency,
		Err:     apperr.New(apperr.KindInFlight, "checkout.submit", "order already submitted, retry its payment"),
	}
}

func (o *Orchestrator) pay(ctx context.Context, order orders.Order, method orders.PaymentMethod) (string, error) {
	o.mu.Lock()
	prev, prevResult := o.payment, o.result
	o.mu.Unlock()

	// one active payment per order: another method may not charge while a
	// hold from an earlier attempt is unresolved
	held, ref, err := o.Gateways.OpenHold(ctx, order.ID, method)
	if err != nil {
		return "", failure(StageCreatePayment, order.ID, "", err)
	}
	if held != "" {
		return "", failure(StageCreatePayment, order.ID, "", apperr.Newf(apperr.KindAmbiguousPending,
			"checkout.pay", "%s payment for order %s is still being settled", held, order.ID).WithRef(ref))
	}

	var payment orders.Payment
	if prev != nil && prev.Method == method && prev.Status != orders.PaymentCompleted {
		payment = *prev
	} else {
		o.setState(StateCreatingPayment)
		p, err := o.API.CreatePayment(ctx, order.ID, method)
		if err != nil {
			return "", failure(StageCreatePayment, order.ID, "", err)
		}
		payment, prevResult = p, nil
	}
	o.remember(payment, prevResult)

	if payment.Amount != order.TotalAmount {
		return "", failure(StageCreatePayment, order.ID, payment.ID, apperr.Newf(apperr.KindValidation, "checkout.create_payment",
			"payment amount %d does not match order total %d", payment.Amount, order.TotalAmount))
	}

	// a gateway result that was never confirmed is confirmed, not charged again
	result := prevResult
	if result == nil {
		o.setState(StateProcessingPayment)
		gw, err := o.Gateways.For(method)
		if err != nil {
			return "", failure(StageProcessPayment, order.ID, payment.ID, err)
		}
		res, err := gw.Process(payments.WithPaymentID(ctx, payment.ID), order, payment.Amount)
		if err != nil {
			return "", o.paymentFailed(ctx, order, payment, err)
		}
		result = &res
		o.remember(payment, result)
	}

	confirmed, err := o.API.ConfirmPayment(ctx, payment.ID, result.TransactionID, result.ProviderData)
	if err != nil {
		return "", failure(StageConfirmPayment, order.ID, payment.ID, err)
	}
	if confirmed.Status == "" {
		confirmed.Status = orders.PaymentCompleted
	}
	o.logger().Info("payment completed", "order_id", order.ID, "payment_id", payment.ID, "method", method, "transaction_id", result.TransactionID)
	o.emit(ctx, orders.EventPaymentAuthorized, order.ID, orders.PaymentAuthorizedPayload{
		OrderID:       order.ID,
		PaymentID:     payment.ID,
		Method:        method,
		TransactionID: result.TransactionID,
		Amount:        payment.Amount,
	})

	o.mu.Lock()
	o.payment = &confirmed
	o.order, o.result = nil, nil
	o.mu.Unlock()
	o.clearCart(ctx)
	return order.ID, nil
}

func (o *Orchestrator) paymentFailed(ctx context.Context, order orders.Order, payment orders.Payment, err error) error {
	ce := failure(StageProcessPayment, order.ID, payment.ID, err)
	switch ce.Kind {
	case apperr.KindAmbiguousPending, apperr.KindGatewayTimeout, apperr.KindNetwork:
		payment.Status = orders.PaymentPending
	default:
		payment.Status = orders.PaymentFailed
	}
	o.remember(payment, nil)

	o.logger().Warn("payment failed", "order_id", order.ID, "payment_id", payment.ID, "method", payment.Method,
		"kind", ce.Kind.String(), "phase", ce.Phase, "err", err)
	o.emit(ctx, orders.EventPaymentFailed, order.ID, orders.PaymentFailedPayload{
		OrderID:   order.ID,
		PaymentID: payment.ID,
		Method:    payment.Method,
		Kind:      ce.Kind.String(),
		Phase:     ce.Phase,
		Reason:    err.Error(),
	})
	if ce.Kind == apperr.KindAmbiguousPending && ce.Ref != "" {
		o.emit(ctx, orders.EventReservationPending, order.ID, orders.ReservationPendingPayload{
			OrderID:       order.ID,
			PaymentID:     payment.ID,
			TransactionID: ce.Ref,
			Amount:        payment.Amount,
		})
	}
	return ce
}

func (o *Orchestrator) remember(p orders.Payment, r *payments.Result) {
	o.mu.Lock()
	o.payment = &p
	o.result = r
	o.mu.Unlock()
}

func (o *Orchestrator) clearCart(ctx context.Context) {
	if o.Cart == nil {
		return
	}
	if err := o.Cart.Clear(ctx); err != nil {
		o.logger().Warn("cart clear failed after checkout", "session", o.Cart.ID, "err", err)
	}
}

func (o *Orchestrator) sessionID() string {
	if o.Cart == nil {
		return ""
	}
	return o.Cart.ID
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log == nil {
		return logx.Nop()
	}
	return o.Log
}
