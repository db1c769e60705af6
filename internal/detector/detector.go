// Package detector consolidates the changes produced across a single
// polling cycle, dropping ping-pong flips so a provider that flaps
// between two values within one cycle never triggers a spurious
// notification.
package detector

import "github.com/flightops/tripnotifier/internal/models"

// Consolidate groups changesPerCycle by kind. Within a group, if the
// first change's old value equals the last change's new value, the
// whole group is dropped (A→B→A). Otherwise a single Change is emitted
// per kind, spanning from the first old value to the last new value.
func Consolidate(changesPerCycle []models.Change) []models.Change {
	if len(changesPerCycle) == 0 {
		return nil
	}

	order := make([]string, 0, len(changesPerCycle))
	groups := make(map[string][]models.Change)
	for _, c := range changesPerCycle {
		if _, seen := groups[c.Kind]; !seen {
			order = append(order, c.Kind)
		}
		groups[c.Kind] = append(groups[c.Kind], c)
	}

	var consolidated []models.Change
	for _, kind := range order {
		group := groups[kind]
		first, last := group[0], group[len(group)-1]
		if first.OldValue == last.NewValue {
			continue
		}
		consolidated = append(consolidated, models.Change{
			Kind:               kind,
			OldValue:           first.OldValue,
			NewValue:           last.NewValue,
			MappedNotification: last.MappedNotification,
		})
	}

	return consolidated
}
