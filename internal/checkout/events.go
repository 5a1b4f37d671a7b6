package checkout

import (
	"context"

	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

// EventPublisher ships lifecycle events; the Kafka producer in production.
type EventPublisher interface {
	Publish(ctx context.Context, env orders.Envelope) error
}

func (o *Orchestrator) emit(ctx context.Context, eventType, orderID string, payload any) {
	if o.Events == nil {
		return
	}
	env, err := orders.NewEnvelope(eventType, o.producer(), orderID, payload)
	if err == nil {
		err = o.Events.Publish(ctx, env)
	}
	if err != nil {
		o.logger().Warn("publish event failed", "event_type", eventType, "order_id", orderID, "err", err)
	}
}

func (o *Orchestrator) producer() string {
	if o.Service == "" {
		return "checkout"
	}
	return o.Service
}
