package payments

import (
	"context"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

// Gateway turns an order and amount into a provider result. Every failure is
// an *apperr.Error carrying Kind, Phase and Retryable.
type Gateway interface {
	Method() orders.PaymentMethod
	Process(ctx context.Context, order orders.Order, amount int64) (Result, error)
}

// HoldKeeper is a gateway whose provider hold can outlive a failed attempt.
type HoldKeeper interface {
	OpenHold(ctx context.Context, orderID string) (ref string, ok bool, err error)
}

type Result struct {
	TransactionID string            `json:"transaction_id"`
	TradeNo       string            `json:"trade_no,omitempty"`
	ProviderData  map[string]string `json:"provider_data,omitempty"`
}

// Phases reported on gateway errors.
const (
	PhaseValidate        = "validate"
	PhaseAuthorize       = "authorize"
	PhaseReserve         = "reserve"
	PhaseConfirm         = "confirm"
	PhaseCheck           = "check"
	PhaseCancel          = "cancel"
	PhaseCapability      = "capability"
	PhaseAttestation     = "attestation"
	PhaseDeviceAuthorize = "device_authorize"
)

type Registry struct {
	gateways map[orders.PaymentMethod]Gateway
}

func NewRegistry(gs ...Gateway) *Registry {
	r := &Registry{gateways: make(map[orders.PaymentMethod]Gateway, len(gs))}
	for _, g := range gs {
		r.gateways[g.Method()] = g
	}
	return r
}

func (r *Registry) For(m orders.PaymentMethod) (Gateway, error) {
	g, ok := r.gateways[m]
	if !ok {
		return nil, apperr.Newf(apperr.KindGatewayConfig, "payments.registry", "no gateway for method %q", m)
	}
	return g, nil
}

// OpenHold finds a hold left open for orderID by a gateway other than except.
// It returns the gateway's method and the provider reference.
func (r *Registry) OpenHold(ctx context.Context, orderID string, except orders.PaymentMethod) (orders.PaymentMethod, string, error) {
	for _, m := range r.Methods() {
		if m == except {
			continue
		}
		hk, ok := r.gateways[m].(HoldKeeper)
		if !ok {
			continue
		}
		ref, open, err := hk.OpenHold(ctx, orderID)
		if err != nil {
			return "", "", apperr.Wrap(apperr.KindNetwork, "payments.open_hold", err)
		}
		if open {
			return m, ref, nil
		}
	}
	return "", "", nil
}

type paymentIDKey struct{}

// WithPaymentID attaches the backend payment a gateway call settles, so
// journaled holds can be confirmed later without the caller.
func WithPaymentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, paymentIDKey{}, id)
}

func PaymentIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(paymentIDKey{}).(string)
	return id
}

func (r *Registry) Methods() []orders.PaymentMethod {
	out := make([]orders.PaymentMethod, 0, len(r.gateways))
	for _, m := range []orders.PaymentMethod{orders.MethodCash, orders.MethodCard, orders.MethodWallet, orders.MethodDeviceWallet} {
		if _, ok := r.gateways[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// checkAmount rejects a charge that does not match the order total.
func checkAmount(op string, order orders.Order, amount int64) error {
	if order.ID == "" {
		return apperr.New(apperr.KindGatewayConfig, op, "order id is required").WithPhase(PhaseValidate, false)
	}
	if amount <= 0 || amount != order.TotalAmount {
		return apperr.Newf(apperr.KindValidation, op, "amount %d does not match order total %d", amount, order.TotalAmount).
			WithPhase(PhaseValidate, false)
	}
	return nil
}
