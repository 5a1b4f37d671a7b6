package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindGatewayDeclined
	KindGatewayTimeout
	KindAmbiguousPending
	KindInvalidTransition
	KindNetwork
	KindInFlight
	KindGatewayConfig
	KindGatewayUnsupported
	KindAttestationFailed
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION"
	case KindGatewayDeclined:
		return "GATEWAY_DECLINED"
	case KindGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	case KindAmbiguousPending:
		return "AMBIGUOUS_PENDING"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindNetwork:
		return "NETWORK"
	case KindInFlight:
		return "IN_FLIGHT"
	case KindGatewayConfig:
		return "GATEWAY_CONFIG"
	case KindGatewayUnsupported:
		return "GATEWAY_UNSUPPORTED"
	case KindAttestationFailed:
		return "ATTESTATION_FAILED"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is the one error type every layer returns for classified failures.
// Op names the operation ("orders.create", "card.authorize"), Phase the
// gateway phase when there is one.
type Error struct {
	Kind      Kind
	Op        string
	Phase     string
	Retryable bool
	Message   string
	Ref       string // provider reference, e.g. an open reservation's transaction id
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Retryable: defaultRetryable(kind)}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err, Retryable: defaultRetryable(kind)}
}

// WithPhase returns a copy tagged with the gateway phase and explicit retryability.
func (e *Error) WithPhase(phase string, retryable bool) *Error {
	cp := *e
	cp.Phase = phase
	cp.Retryable = retryable
	return &cp
}

// WithRef returns a copy carrying a provider reference.
func (e *Error) WithRef(ref string) *Error {
	cp := *e
	cp.Ref = ref
	return &cp
}

func Validation(op, field, message string) *Error {
	return New(KindValidation, op, field+": "+message)
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func defaultRetryable(k Kind) bool {
	switch k {
	case KindGatewayDeclined, KindGatewayTimeout, KindNetwork, KindAttestationFailed:
		return true
	default:
		return false
	}
}

// As returns the classified error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func RefOf(err error) string {
	if e, ok := As(err); ok {
		return e.Ref
	}
	return ""
}
