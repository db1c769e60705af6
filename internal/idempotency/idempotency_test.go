package idempotency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicRegardlessOfMapOrder(t *testing.T) {
	a, err := Hash("trip-1", "DELAYED", map[string]string{"eta_round": "2025-07-09T03:00:00Z"})
	require.NoError(t, err)

	b, err := Hash("trip-1", "DELAYED", map[string]string{"eta_round": "2025-07-09T03:00:00Z"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestHash_DiffersByTripKindOrPayload(t *testing.T) {
	base, err := Hash("trip-1", "DELAYED", map[string]string{"eta_round": "2025-07-09T03:00:00Z"})
	require.NoError(t, err)

	otherTrip, _ := Hash("trip-2", "DELAYED", map[string]string{"eta_round": "2025-07-09T03:00:00Z"})
	otherKind, _ := Hash("trip-1", "GATE_CHANGE", map[string]string{"eta_round": "2025-07-09T03:00:00Z"})
	otherPayload, _ := Hash("trip-1", "DELAYED", map[string]string{"eta_round": "2025-07-09T02:45:00Z"})

	assert.NotEqual(t, base, otherTrip)
	assert.NotEqual(t, base, otherKind)
	assert.NotEqual(t, base, otherPayload)
}

func TestCanonicalJSON_RoundTripIsStable(t *testing.T) {
	payload := map[string]string{"b": "2", "a": "1"}

	first, err := CanonicalJSON(payload)
	require.NoError(t, err)

	second, err := CanonicalJSON(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
