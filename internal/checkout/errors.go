package checkout

import (
	"fmt"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
)

type Stage string

const (
	StageValidate       Stage = "validate"
	StageIdempotency    Stage = "idempotency"
	StageCreateOrder    Stage = "create_order"
	StageVerifyTotals   Stage = "verify_totals"
	StageCreatePayment  Stage = "create_payment"
	StageProcessPayment Stage = "process_payment"
	StageConfirmPayment Stage = "confirm_payment"
)

// UI steps a failure sends the customer back to.
const (
	StepOrder   = "order"
	StepPayment = "payment"
)

// CheckoutError is a failed checkout attempt. When OrderID is set the order
// exists and only payment needs retrying.
type CheckoutError struct {
	Kind      apperr.Kind
	OrderID   string
	PaymentID string
	Stage     Stage
	Phase     string // gateway phase, when the gateway failed
	Ref       string // provider reference such as an open reservation
	Err       error
}

func (e *CheckoutError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("checkout %s (order %s): %s: %v", e.Stage, e.OrderID, e.Kind, e.Err)
	}
	return fmt.Sprintf("checkout %s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }

// Recoverable reports whether the customer can stay on the payment step.
func (e *CheckoutError) Recoverable() bool {
	switch e.Kind {
	case apperr.KindValidation, apperr.KindInvalidTransition, apperr.KindGatewayConfig, apperr.KindUnknown:
		return false
	case apperr.KindInFlight:
		return e.OrderID != ""
	}
	return true
}

func (e *CheckoutError) Step() string {
	if e.Recoverable() {
		return StepPayment
	}
	return StepOrder
}

func failure(stage Stage, orderID, paymentID string, err error) *CheckoutError {
	ce := &CheckoutError{Kind: apperr.KindOf(err), OrderID: orderID, PaymentID: paymentID, Stage: stage, Err: err}
	if ae, ok := apperr.As(err); ok {
		ce.Phase = ae.Phase
		ce.Ref = ae.Ref
	}
	return ce
}
