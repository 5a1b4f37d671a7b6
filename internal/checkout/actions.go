package checkout

import (
	"context"

	"github.com/ariefcatur/go-table-checkout/internal/orders"
)

type OrderActions interface {
	GetOrder(ctx context.Context, id string) (orders.Order, error)
	CancelOrder(ctx context.Context, id, reason string) (orders.Order, error)
	UpdateStatus(ctx context.Context, id string, status orders.Status) (orders.Order, error)
}

// CancelOrder cancels an order after checking its current status allows it.
func CancelOrder(ctx context.Context, api OrderActions, id, reason string) (orders.Order, error) {
	return move(ctx, api, id, orders.StatusCancelled, func() (orders.Order, error) {
		return api.CancelOrder(ctx, id, reason)
	})
}

// AdvanceStatus is the staff transition, validated locally before the
// backend sees it.
func AdvanceStatus(ctx context.Context, api OrderActions, id string, to orders.Status) (orders.Order, error) {
	return move(ctx, api, id, to, func() (orders.Order, error) {
		return api.UpdateStatus(ctx, id, to)
	})
}

func move(ctx context.Context, api OrderActions, id string, to orders.Status, apply func() (orders.Order, error)) (orders.Order, error) {
	cur, err := api.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if _, err := orders.Transition(cur.Status, to); err != nil {
		return cur, err
	}
	return apply()
}
