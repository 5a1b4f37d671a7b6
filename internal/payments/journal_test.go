package payments

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal_OneOpenPerOrder(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o1", TransactionID: "t1"}))
	err := j.Record(ctx, Reservation{OrderID: "o1", TransactionID: "t2"})
	assert.Equal(t, apperr.KindAmbiguousPending, apperr.KindOf(err))

	require.NoError(t, j.Resolve(ctx, "t1", ReservationReleased))
	require.NoError(t, j.Resolve(ctx, "t1", ReservationCaptured), "resolving twice is a no-op")
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o1", TransactionID: "t2"}))

	r, ok, err := j.Open(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t2", r.TransactionID)

	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(j.Resolve(ctx, "nope", ReservationReleased)))

	old, ok, err := j.Lookup(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ReservationReleased, old.State)
	_, ok, _ = j.Lookup(ctx, "nope")
	assert.False(t, ok)
}

func TestMemoryJournal_UnsettledBefore(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o1", TransactionID: "t1", CreatedAt: old}))
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o2", TransactionID: "t2"}))
	// captured, backend not told yet
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o3", TransactionID: "t3", PaymentID: "pay-3", CreatedAt: old.Add(time.Second)}))
	require.NoError(t, j.Resolve(ctx, "t3", ReservationCaptured))
	// captured without a payment id: nothing left to confirm
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o4", TransactionID: "t4", CreatedAt: old}))
	require.NoError(t, j.Resolve(ctx, "t4", ReservationCaptured))

	got, err := j.Unsettled(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].TransactionID)
	assert.Equal(t, "t3", got[1].TransactionID)

	require.NoError(t, j.MarkConfirmed(ctx, "t3"))
	got, err = j.Unsettled(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(j.MarkConfirmed(ctx, "nope")))
}

func TestMemoryJournal_ForOrder(t *testing.T) {
	j := NewMemoryJournal()
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, Reservation{OrderID: "o1", TransactionID: "t1", PaymentID: "pay-1"}))

	_, ok, err := j.ForOrder(ctx, "o1", ReservationCaptured)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, j.Resolve(ctx, "t1", ReservationCaptured))
	r, ok, err := j.ForOrder(ctx, "o1", ReservationCaptured)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", r.TransactionID)
	assert.Equal(t, "pay-1", r.PaymentID)

	_, ok, _ = j.ForOrder(ctx, "o2", ReservationCaptured)
	assert.False(t, ok)
}
