package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/ariefcatur/go-table-checkout/internal/orders"
	"github.com/segmentio/kafka-go"
)

// EventType reads the x-event-type header so handlers can skip foreign
// events without decoding the body.
func EventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

func DecodeEnvelope(m kafka.Message) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return env, fmt.Errorf("decode envelope at offset %d: %w", m.Offset, err)
	}
	return env, nil
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
