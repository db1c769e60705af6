package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrip_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   string
		expected bool
	}{
		{"scheduled is not terminal", StatusScheduled, false},
		{"delayed is not terminal", StatusDelayed, false},
		{"boarding is not terminal", StatusBoarding, false},
		{"in flight is not terminal", StatusInFlight, false},
		{"landed is terminal", StatusLanded, true},
		{"arrived is terminal", StatusArrived, true},
		{"completed is terminal", StatusCompleted, true},
		{"cancelled is terminal", StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip := &Trip{Status: tt.status}
			assert.Equal(t, tt.expected, trip.IsTerminal())
		})
	}
}

func TestTrip_IsDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	t.Run("due when next_check_at has passed", func(t *testing.T) {
		trip := &Trip{Status: StatusScheduled, NextCheckAt: &past}
		assert.True(t, trip.IsDue(now))
	})

	t.Run("not due when next_check_at is in the future", func(t *testing.T) {
		trip := &Trip{Status: StatusScheduled, NextCheckAt: &future}
		assert.False(t, trip.IsDue(now))
	})

	t.Run("not due when next_check_at is nil", func(t *testing.T) {
		trip := &Trip{Status: StatusScheduled}
		assert.False(t, trip.IsDue(now))
	})

	t.Run("never due once terminal, even with a past next_check_at", func(t *testing.T) {
		trip := &Trip{Status: StatusLanded, NextCheckAt: &past}
		assert.False(t, trip.IsDue(now))
	})
}

func TestTrip_GateOrDefault(t *testing.T) {
	placeholder := "por confirmar"

	t.Run("prefers the trip's own gate", func(t *testing.T) {
		gate := "A12"
		trip := &Trip{Gate: &gate, Metadata: map[string]string{"gate": "Z9"}}
		assert.Equal(t, "A12", trip.GateOrDefault(placeholder))
	})

	t.Run("ignores an empty gate string", func(t *testing.T) {
		empty := ""
		trip := &Trip{Gate: &empty, Metadata: map[string]string{"gate_origin": "B7"}}
		assert.Equal(t, "B7", trip.GateOrDefault(placeholder))
	})

	t.Run("falls back through metadata keys in priority order", func(t *testing.T) {
		trip := &Trip{Metadata: map[string]string{"boarding_gate": "C3", "terminal_gate": "D4"}}
		assert.Equal(t, "D4", trip.GateOrDefault(placeholder))
	})

	t.Run("falls back to the placeholder when nothing is known", func(t *testing.T) {
		trip := &Trip{Metadata: map[string]string{}}
		assert.Equal(t, placeholder, trip.GateOrDefault(placeholder))
	})
}
