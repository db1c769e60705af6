// Package templates maps notification kinds to message templates and
// renders their positional variable slots.
package templates

import (
	"fmt"

	"github.com/flightops/tripnotifier/internal/models"
)

// Definition describes one notification kind's outbound template.
type Definition struct {
	TemplateID   string
	TemplateName string
	Slots        []string
}

// Registry is the closed, static map of notification kind to template
// definition. It is configuration in spirit — see Defaults for the
// per-slot fallback text — but expressed as Go data since this core has
// no external config-catalogue loader.
var Registry = map[models.NotificationKind]Definition{
	models.KindReservationConfirmation: {
		TemplateID:   "tpl_reservation_confirmation",
		TemplateName: "reservation_confirmation",
		Slots:        []string{"name", "flight", "origin", "destination", "local_departure_human"},
	},
	models.KindReminder24h: {
		TemplateID:   "tpl_reminder_24h",
		TemplateName: "reminder_24h",
		Slots:        []string{"name", "origin", "local_departure_clean", "weather", "destination", "closing"},
	},
	models.KindDelayed: {
		TemplateID:   "tpl_delayed",
		TemplateName: "delayed",
		Slots:        []string{"name", "flight", "new_eta_human"},
	},
	models.KindGateChange: {
		TemplateID:   "tpl_gate_change",
		TemplateName: "gate_change",
		Slots:        []string{"name", "flight", "new_gate"},
	},
	models.KindCancelled: {
		TemplateID:   "tpl_cancelled",
		TemplateName: "cancelled",
		Slots:        []string{"name", "flight"},
	},
	models.KindBoarding: {
		TemplateID:   "tpl_boarding",
		TemplateName: "boarding",
		Slots:        []string{"flight", "gate"},
	},
	models.KindItineraryReady: {
		TemplateID:   "tpl_itinerary_ready",
		TemplateName: "itinerary_ready",
		Slots:        []string{"name"},
	},
	models.KindLandingWelcome: {
		TemplateID:   "tpl_landing_welcome",
		TemplateName: "landing_welcome",
		Slots:        []string{"destination_city", "stay_address"},
	},
}

// Defaults fills a slot when neither the caller-supplied variables nor
// Extra provide a value, so a rendered message is never missing a slot.
var Defaults = map[string]string{
	"weather":      "clima no disponible",
	"closing":      "Buen viaje",
	"stay_address": "la dirección registrada en tu reserva",
}

// FormattedMessage is the rendered output ready to hand to the delivery
// client.
type FormattedMessage struct {
	TemplateID   string
	TemplateName string
	Variables    map[string]string
}

// Format resolves a notification kind's slots from values and, for any
// slot values leaves unset, from extra and then Defaults. An unknown
// kind is a programming error, not a runtime condition the caller can
// recover from.
func Format(kind models.NotificationKind, values map[string]string, extra map[string]string) (FormattedMessage, error) {
	def, ok := Registry[kind]
	if !ok {
		return FormattedMessage{}, fmt.Errorf("templates: unknown notification kind %q", kind)
	}

	variables := make(map[string]string, len(def.Slots))
	for i, slot := range def.Slots {
		key := fmt.Sprintf("%d", i+1)
		if v, ok := values[slot]; ok && v != "" {
			variables[key] = v
			continue
		}
		if v, ok := extra[slot]; ok && v != "" {
			variables[key] = v
			continue
		}
		variables[key] = Defaults[slot]
	}

	return FormattedMessage{
		TemplateID:   def.TemplateID,
		TemplateName: def.TemplateName,
		Variables:    variables,
	}, nil
}
