package orders

import (
	"strings"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
)

type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusConfirmed      Status = "CONFIRMED"
	StatusPreparing      Status = "PREPARING"
	StatusReady          Status = "READY"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// Statuses lists the canonical vocabulary in lifecycle order.
var Statuses = []Status{
	StatusPendingPayment,
	StatusConfirmed,
	StatusPreparing,
	StatusReady,
	StatusCompleted,
	StatusCancelled,
}

var validNext = map[Status]map[Status]bool{
	StatusPendingPayment: {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusReady: true},
	StatusReady:          {StatusCompleted: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
}

// aliases folds the vocabularies used by other surfaces onto the canonical one.
var aliases = map[string]Status{
	"DELIVERED": StatusCompleted,
	"PENDING":   StatusPendingPayment,
	"CANCELED":  StatusCancelled,
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Transition validates from→to and returns the new status.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, apperr.Newf(apperr.KindInvalidTransition, "orders.transition",
			"cannot move order from %s to %s", from, to)
	}
	return to, nil
}

// Reachable reports whether to can follow from through one or more legal
// transitions. Pollers use it because intermediate statuses may be skipped
// between two fetches.
func Reachable(from, to Status) bool {
	if from == to {
		return false
	}
	seen := map[Status]bool{from: true}
	queue := []Status{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range validNext[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

func IsActive(s Status) bool {
	switch s {
	case StatusPendingPayment, StatusConfirmed, StatusPreparing, StatusReady:
		return true
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) String() string { return string(s) }

func ParseStatus(raw string) (Status, error) {
	norm := strings.ToUpper(strings.TrimSpace(raw))
	if a, ok := aliases[norm]; ok {
		return a, nil
	}
	s := Status(norm)
	if !s.Valid() {
		return "", apperr.Newf(apperr.KindValidation, "orders.parse_status", "unknown order status %q", raw)
	}
	return s, nil
}

// UnmarshalText normalizes both JSON values and JSON map keys.
// An empty value decodes to the zero Status.
func (s *Status) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = ""
		return nil
	}
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Surface string

const (
	SurfaceCustomer Surface = "customer"
	SurfaceStaff    Surface = "staff"
)

// Label is the display text for a status on the given surface. The staff
// dashboard has always called a completed order "Delivered".
func (s Status) Label(surface Surface) string {
	switch s {
	case StatusPendingPayment:
		return "Awaiting payment"
	case StatusConfirmed:
		return "Confirmed"
	case StatusPreparing:
		return "Preparing"
	case StatusReady:
		return "Ready"
	case StatusCompleted:
		if surface == SurfaceStaff {
			return "Delivered"
		}
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	}
	return string(s)
}
