package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-table-checkout/internal/syncpoll"
	"github.com/go-chi/chi/v5"
)

// ViewsHandler exposes the pollers. Views live until closed, independent of
// the request that opened them.
type ViewsHandler struct {
	Views *syncpoll.Views
	// Base is the parent context for opened views, normally the server's
	// lifetime. The request context minus its cancellation is used when nil.
	Base context.Context
}

type openResp struct {
	ViewID string `json:"view_id"`
}

func (h *ViewsHandler) Register(r chi.Router) {
	r.Route("/views", func(r chi.Router) {
		r.Post("/customer/{customerId}", h.openCustomer)
		r.Post("/order/{orderId}", h.openOrder)
		r.Post("/staff", h.openStaff)
		r.Post("/staff/{staffId}", h.openStaff)
		r.Post("/{viewId}/focus", h.focus)
		r.Get("/{viewId}", h.snapshot)
		r.Delete("/{viewId}", h.close)
	})
}

func (h *ViewsHandler) base(r *http.Request) context.Context {
	if h.Base != nil {
		return h.Base
	}
	return context.WithoutCancel(r.Context())
}

func (h *ViewsHandler) openCustomer(w http.ResponseWriter, r *http.Request) {
	id := h.Views.OpenCustomer(h.base(r), chi.URLParam(r, "customerId"))
	writeJSON(w, http.StatusCreated, openResp{ViewID: id})
}

func (h *ViewsHandler) openOrder(w http.ResponseWriter, r *http.Request) {
	id := h.Views.OpenOrder(h.base(r), chi.URLParam(r, "orderId"))
	writeJSON(w, http.StatusCreated, openResp{ViewID: id})
}

func (h *ViewsHandler) openStaff(w http.ResponseWriter, r *http.Request) {
	id := h.Views.OpenStaff(h.base(r), chi.URLParam(r, "staffId"))
	writeJSON(w, http.StatusCreated, openResp{ViewID: id})
}

func (h *ViewsHandler) focus(w http.ResponseWriter, r *http.Request) {
	if err := h.Views.Focus(chi.URLParam(r, "viewId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ViewsHandler) snapshot(w http.ResponseWriter, r *http.Request) {
	s, err := h.Views.Snapshot(chi.URLParam(r, "viewId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ViewsHandler) close(w http.ResponseWriter, r *http.Request) {
	if err := h.Views.Close(chi.URLParam(r, "viewId")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
