package orders

const (
	TopicOrderCreated          = "checkout.order.created"
	TopicPaymentAuthorized     = "checkout.payment.authorized"
	TopicPaymentFailed         = "checkout.payment.failed"
	TopicReservationPending    = "checkout.reservation.pending"
	TopicReservationReconciled = "checkout.reservation.reconciled"
	TopicOrderStatusObserved   = "orders.status.observed"
)

var topicByEvent = map[string]string{
	EventOrderCreated:          TopicOrderCreated,
	EventPaymentAuthorized:     TopicPaymentAuthorized,
	EventPaymentFailed:         TopicPaymentFailed,
	EventReservationPending:    TopicReservationPending,
	EventReservationReconciled: TopicReservationReconciled,
	EventOrderStatusObserved:   TopicOrderStatusObserved,
}

// TopicFor returns the topic an event type is published on.
func TopicFor(eventType string) (string, bool) {
	t, ok := topicByEvent[eventType]
	return t, ok
}

// Partition key = order id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
