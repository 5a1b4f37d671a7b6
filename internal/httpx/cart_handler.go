package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-table-checkout/internal/cart"
	"github.com/ariefcatur/go-table-checkout/internal/checkout"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Sessions *checkout.Registry
}

type cartResp struct {
	TableNumber string            `json:"table_number"`
	Items       []orders.CartItem `json:"items"`
	Totals      *cart.Totals      `json:"totals,omitempty"`
	Error       string            `json:"totals_error,omitempty"`
}

type putCartReq struct {
	TableNumber string            `json:"table_number"`
	Items       []orders.CartItem `json:"items"`
}

type quantityReq struct {
	Quantity int `json:"quantity"`
}

type tableReq struct {
	TableNumber string `json:"table_number"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.put)
		r.Delete("/", h.clear)
		r.Post("/items", h.addItem)
		r.Patch("/items/{menuItemId}", h.setQuantity)
		r.Delete("/items/{menuItemId}", h.removeItem)
		r.Put("/table", h.setTable)
		r.Get("/totals", h.totals)
	})
	r.Post("/session/logout", h.logout)
}

func (h *CartHandler) session(r *http.Request) (*cart.Session, error) {
	sid, err := sessionID(r)
	if err != nil {
		return nil, err
	}
	o, err := h.Sessions.Get(r.Context(), sid)
	if err != nil {
		return nil, err
	}
	return o.Cart, nil
}

// mutate applies fn to the session cart, persists it and replies with the new cart.
func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, fn func(c *cart.Cart) error) {
	sess, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(sess.Cart); err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Save(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess.Cart))
}

func view(c *cart.Cart) cartResp {
	resp := cartResp{TableNumber: c.Table(), Items: c.Items()}
	t, err := c.Totals()
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Totals = &t
	}
	return resp
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess.Cart))
}

// put replaces the whole cart; nothing changes unless every line is valid.
func (h *CartHandler) put(w http.ResponseWriter, r *http.Request) {
	var req putCartReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	next := cart.New()
	if req.TableNumber != "" {
		if err := next.SetTable(req.TableNumber); err != nil {
			writeError(w, err)
			return
		}
	}
	for _, it := range req.Items {
		if err := next.Add(it); err != nil {
			writeError(w, err)
			return
		}
	}
	h.mutate(w, r, func(c *cart.Cart) error {
		c.Clear()
		if req.TableNumber != "" {
			if err := c.SetTable(req.TableNumber); err != nil {
				return err
			}
		}
		for _, it := range next.Items() {
			if err := c.Add(it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess.Cart))
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var item orders.CartItem
	if err := decode(r, &item); err != nil {
		writeError(w, err)
		return
	}
	h.mutate(w, r, func(c *cart.Cart) error { return c.Add(item) })
}

func (h *CartHandler) setQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := chi.URLParam(r, "menuItemId")
	h.mutate(w, r, func(c *cart.Cart) error { return c.SetQuantity(id, req.Quantity) })
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "menuItemId")
	h.mutate(w, r, func(c *cart.Cart) error {
		c.Remove(id)
		return nil
	})
}

func (h *CartHandler) setTable(w http.ResponseWriter, r *http.Request) {
	var req tableReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.mutate(w, r, func(c *cart.Cart) error { return c.SetTable(req.TableNumber) })
}

func (h *CartHandler) totals(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := sess.Cart.Totals()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *CartHandler) logout(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Sessions.Logout(context.WithoutCancel(r.Context()), sid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
