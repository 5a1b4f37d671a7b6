package orders

import (
	"encoding/json"
	"testing"

	"github.com/ariefcatur/go-table-checkout/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_NoSelfTransitions(t *testing.T) {
	for _, s := range Statuses {
		assert.False(t, CanTransition(s, s), "%s -> %s", s, s)
	}
}

func TestCanTransition_TerminalHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusCancelled} {
		for _, to := range Statuses {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingPayment, StatusConfirmed, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPendingPayment, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPreparing, StatusCancelled, false},
		{StatusReady, StatusCancelled, false},
		{StatusReady, StatusPendingPayment, false},
		{StatusPendingPayment, StatusPreparing, false},
		{Status("BOGUS"), StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransition_RejectsIllegal(t *testing.T) {
	got, err := Transition(StatusPreparing, StatusCancelled)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Equal(t, StatusPreparing, got)

	got, err = Transition(StatusConfirmed, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got)
}

func TestReachable(t *testing.T) {
	assert.True(t, Reachable(StatusConfirmed, StatusReady))
	assert.True(t, Reachable(StatusPendingPayment, StatusCompleted))
	assert.False(t, Reachable(StatusReady, StatusConfirmed))
	assert.False(t, Reachable(StatusPreparing, StatusCancelled))
	assert.False(t, Reachable(StatusReady, StatusReady))
}

func TestActiveAndTerminalPartitionTheVocabulary(t *testing.T) {
	for _, s := range Statuses {
		assert.NotEqual(t, IsActive(s), IsTerminal(s), s)
	}
}

func TestParseStatus_Aliases(t *testing.T) {
	tests := map[string]Status{
		"DELIVERED":       StatusCompleted,
		"delivered":       StatusCompleted,
		" preparing ":     StatusPreparing,
		"PENDING":         StatusPendingPayment,
		"PENDING_PAYMENT": StatusPendingPayment,
	}
	for raw, want := range tests {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseStatus("SHIPPED")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatusJSONNormalizesValuesAndKeys(t *testing.T) {
	var o StaffOverview
	raw := `{"counts":{"DELIVERED":4,"preparing":2,"CONFIRMED":1},"total_orders":7}`
	require.NoError(t, json.Unmarshal([]byte(raw), &o))

	assert.Equal(t, 4, o.Counts[StatusCompleted])
	assert.Equal(t, 2, o.Counts[StatusPreparing])
	assert.Equal(t, 3, o.ActiveCount())

	var ord Order
	require.NoError(t, json.Unmarshal([]byte(`{"id":"o1","status":"delivered"}`), &ord))
	assert.Equal(t, StatusCompleted, ord.Status)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Delivered", StatusCompleted.Label(SurfaceStaff))
	assert.Equal(t, "Completed", StatusCompleted.Label(SurfaceCustomer))
	assert.Equal(t, "Awaiting payment", StatusPendingPayment.Label(SurfaceStaff))
}
