package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type OrdersHandler struct {
	API   checkout.OrderActions
	Redis redis.Cmdable // optional status cache
	Log   *slog.Logger
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

type statusResp struct {
	OrderID string        `json:"order_id"`
	Status  orders.Status `json:"status"`
	Label   string        `json:"label"`
	Cached  bool          `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.API.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getStatus answers from the poller's cache first and falls back to the backend.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	surface := orders.Surface(r.URL.Query().Get("surface"))
	if surface == "" {
		surface = orders.SurfaceCustomer
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Redis != nil {
		if raw, err := redisx.CachedStatus(ctx, h.Redis, id); err == nil && raw != "" {
			if s, err := orders.ParseStatus(raw); err == nil {
				writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: s, Label: s.Label(surface), Cached: true})
				return
			}
		}
	}

	o, err := h.API.GetOrder(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: o.Status, Label: o.Status.Label(surface)})
}

// cacheStatus overwrites the cached status with one just read or written.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil || o.ID == "" {
		return
	}
	if err := redisx.CacheStatus(ctx, h.Redis, o.ID, string(o.Status), o.UpdatedAt); err != nil {
		h.logger().Warn("status cache write failed", "order_id", o.ID, "err", err)
	}
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := checkout.CancelOrder(r.Context(), h.API, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := checkout.AdvanceStatus(r.Context(), h.API, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(r.Context(), o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) logger() *slog.Logger {
	if h.Log == nil {
		return logx.Nop()
	}
	return h.Log
}
