package payments

import (
	"context"

	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/google/uuid"
)

// Cash records intent to settle in person. No provider is involved.
type Cash struct{}

func (Cash) Method() orders.PaymentMethod { return orders.MethodCash }

func (Cash) Process(_ context.Context, order orders.Order, amount int64) (Result, error) {
	if err := checkAmount("cash.process", order, amount); err != nil {
		return Result{}, err
	}
	return Result{
		TransactionID: "CASH-" + uuid.NewString(),
		ProviderData:  map[string]string{"settlement": "in_person"},
	}, nil
}
