package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flightops/tripnotifier/internal/models"
)

func TestConsolidate_PingPongWithinCycleIsDropped(t *testing.T) {
	changes := []models.Change{
		{Kind: models.ChangeGate, OldValue: "A12", NewValue: "B7", MappedNotification: models.KindGateChange},
		{Kind: models.ChangeGate, OldValue: "B7", NewValue: "A12", MappedNotification: models.KindGateChange},
	}

	result := Consolidate(changes)
	assert.Empty(t, result)
}

func TestConsolidate_SingleGroupEmitsSpanningChange(t *testing.T) {
	changes := []models.Change{
		{Kind: models.ChangeGate, OldValue: "A12", NewValue: "B7", MappedNotification: models.KindGateChange},
		{Kind: models.ChangeGate, OldValue: "B7", NewValue: "C3", MappedNotification: models.KindGateChange},
	}

	result := Consolidate(changes)
	require := assert.New(t)
	require.Len(result, 1)
	require.Equal("A12", result[0].OldValue)
	require.Equal("C3", result[0].NewValue)
}

func TestConsolidate_IndependentKindsAllSurvive(t *testing.T) {
	changes := []models.Change{
		{Kind: models.ChangeGate, OldValue: "A12", NewValue: "B7", MappedNotification: models.KindGateChange},
		{Kind: models.ChangeStatus, OldValue: "SCHEDULED", NewValue: "DELAYED", MappedNotification: models.KindDelayed},
	}

	result := Consolidate(changes)
	assert.Len(t, result, 2)
}

func TestConsolidate_EmptyInput(t *testing.T) {
	assert.Empty(t, Consolidate(nil))
}
