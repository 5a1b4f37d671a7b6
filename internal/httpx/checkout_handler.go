package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/payments"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// CheckoutTimeout bounds one submit or retry, gateway round trips included.
const CheckoutTimeout = 90 * time.Second

type WalletCanceller interface {
	Cancel(ctx context.Context, orderID string) error
}

type CheckoutHandler struct {
	Sessions *checkout.Registry
	Wallet   WalletCanceller // optional
	Redis    redis.Cmdable   // optional; status cache invalidated on payment
	Log      *slog.Logger
}

type checkoutReq struct {
	PaymentMethod   orders.PaymentMethod    `json:"payment_method"`
	SpecialRequests string                  `json:"special_requests,omitempty"`
	Device          *payments.ClientSession `json:"device,omitempty"`
}

type checkoutResp struct {
	OrderID string            `json:"order_id"`
	State   checkout.Snapshot `json:"state"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.submit)
	r.Post("/checkout/retry", h.retry)
	r.Get("/checkout/state", h.state)
	r.Post("/payments/wallet/{orderId}/cancel", h.cancelWallet)
}

func (h *CheckoutHandler) orchestrator(r *http.Request) (*checkout.Orchestrator, error) {
	sid, err := sessionID(r)
	if err != nil {
		return nil, err
	}
	return h.Sessions.Get(r.Context(), sid)
}

// paymentContext outlives the client connection: a customer closing the tab
// must not cut a gateway call short.
func paymentContext(r *http.Request, device *payments.ClientSession) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), CheckoutTimeout)
	if device != nil {
		ctx = payments.WithDeviceSession(ctx, *device)
	}
	return ctx, cancel
}

func (h *CheckoutHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.orchestrator(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := paymentContext(r, req.Device)
	defer cancel()

	id, err := o.Submit(ctx, o.Cart.Cart.Draft(req.PaymentMethod, req.SpecialRequests))
	if err != nil {
		writeError(w, err)
		return
	}
	h.forgetStatus(ctx, id)
	writeJSON(w, http.StatusCreated, checkoutResp{OrderID: id, State: o.Snapshot()})
}

func (h *CheckoutHandler) retry(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.orchestrator(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := paymentContext(r, req.Device)
	defer cancel()

	id, err := o.RetryPayment(ctx, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}
	h.forgetStatus(ctx, id)
	writeJSON(w, http.StatusOK, checkoutResp{OrderID: id, State: o.Snapshot()})
}

func (h *CheckoutHandler) state(w http.ResponseWriter, r *http.Request) {
	o, err := h.orchestrator(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o.Snapshot())
}

func (h *CheckoutHandler) cancelWallet(w http.ResponseWriter, r *http.Request) {
	if h.Wallet == nil {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), DefaultTimeout)
	defer cancel()
	if err := h.Wallet.Cancel(ctx, chi.URLParam(r, "orderId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// forgetStatus drops a status cached while the order awaited payment.
func (h *CheckoutHandler) forgetStatus(ctx context.Context, orderID string) {
	if h.Redis == nil || orderID == "" {
		return
	}
	if err := redisx.ForgetStatus(ctx, h.Redis, orderID); err != nil {
		h.logger().Warn("status cache invalidation failed", "order_id", orderID, "err", err)
	}
}

func (h *CheckoutHandler) logger() *slog.Logger {
	if h.Log == nil {
		return logx.Nop()
	}
	return h.Log
}
