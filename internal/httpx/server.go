package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultTimeout bounds ordinary requests. Checkout routes manage their own
// deadline because a payment must not be abandoned halfway.
const DefaultTimeout = 15 * time.Second

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Register mounts every handler that is set.
func Register(r chi.Router, cart *CartHandler, checkout *CheckoutHandler, orders *OrdersHandler, views *ViewsHandler) {
	if checkout != nil {
		checkout.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(DefaultTimeout))
		if cart != nil {
			cart.Register(r)
		}
		if orders != nil {
			orders.Register(r)
		}
		if views != nil {
			views.Register(r)
		}
	})
}
