package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightops/tripnotifier/internal/models"
)

func TestFormat_ReservationConfirmation_PositionalSlots(t *testing.T) {
	msg, err := Format(models.KindReservationConfirmation, map[string]string{
		"name":                  "Jane Doe",
		"flight":                "BA0245",
		"origin":                "EZE",
		"destination":           "LHR",
		"local_departure_human": "Mar 8 Jul 22:05 hs (LHR)",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "tpl_reservation_confirmation", msg.TemplateID)
	assert.Equal(t, "Jane Doe", msg.Variables["1"])
	assert.Equal(t, "Mar 8 Jul 22:05 hs (LHR)", msg.Variables["5"])
}

func TestFormat_MissingSlotFallsBackToDefault(t *testing.T) {
	msg, err := Format(models.KindReminder24h, map[string]string{
		"name":                  "Jane Doe",
		"origin":                "EZE",
		"local_departure_clean": "8 Jul 11:30 hs",
		"destination":           "LHR",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, Defaults["weather"], msg.Variables["4"])
	assert.Equal(t, Defaults["closing"], msg.Variables["6"])
}

func TestFormat_ExtraPassthroughFillsOptionalSlot(t *testing.T) {
	msg, err := Format(models.KindReminder24h, map[string]string{
		"name":                  "Jane Doe",
		"origin":                "EZE",
		"local_departure_clean": "8 Jul 11:30 hs",
		"destination":           "LHR",
	}, map[string]string{"weather": "Lluvia leve"})
	require.NoError(t, err)

	assert.Equal(t, "Lluvia leve", msg.Variables["4"])
}

func TestFormat_UnknownKindErrors(t *testing.T) {
	_, err := Format(models.NotificationKind("NOT_A_KIND"), nil, nil)
	require.Error(t, err)
}

func TestFormat_BoardingUsesTwoSlots(t *testing.T) {
	msg, err := Format(models.KindBoarding, map[string]string{
		"flight": "BA0245",
		"gate":   "B12",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "BA0245", msg.Variables["1"])
	assert.Equal(t, "B12", msg.Variables["2"])
}
