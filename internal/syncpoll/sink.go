package syncpoll

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/logx"
	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/ariefcatur/go-table-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
)

type EventPublisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
}

// StatusSink caches observed statuses in Redis and publishes them as
// OrderStatusObserved events. Either side may be nil.
type StatusSink struct {
	Redis   redis.Cmdable
	Events  EventPublisher
	Service string
	Log     *slog.Logger
}

func (s *StatusSink) Observe(ctx context.Context, c Change) {
	log := s.Log
	if log == nil {
		log = logx.Nop()
	}
	if s.Redis != nil {
		if err := redisx.CacheStatus(ctx, s.Redis, c.OrderID, string(c.To), time.Now().UTC()); err != nil {
			log.Warn("status cache write failed", "order_id", c.OrderID, "err", err)
		}
	}
	if s.Events == nil {
		return
	}
	env, err := orders.NewEnvelope(orders.EventOrderStatusObserved, s.Service, c.OrderID, orders.OrderStatusObservedPayload{
		OrderID: c.OrderID, From: c.From, To: c.To, Valid: c.Valid,
	})
	if err == nil {
		err = s.Events.Publish(ctx, env)
	}
	if err != nil {
		log.Warn("publish status change failed", "order_id", c.OrderID, "err", err)
	}
}
