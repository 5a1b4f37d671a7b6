package payments

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxTradeNoLen is the longest merchant trade number providers accept.
const MaxTradeNoLen = 20

// NewTradeNo mints a trade number for one payment attempt: prefix followed by
// a ULID (millisecond timestamp + random suffix), cut to MaxTradeNoLen.
// The random part keeps it unique even when cut.
func NewTradeNo(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	s := prefix + id
	if len(s) > MaxTradeNoLen {
		s = s[:MaxTradeNoLen]
	}
	return s
}
