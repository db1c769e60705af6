// Package timez provides pure functions over a UTC instant and an IATA
// airport code: local-time conversion, human-readable formatting in Spanish,
// and the quiet-hours predicate used by the notifications engine.
package timez

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// iataTimezones is the closed table of airports this service understands.
// An IATA code absent from this map falls back to UTC everywhere below.
var iataTimezones = map[string]string{
	"EZE": "America/Argentina/Buenos_Aires",
	"AEP": "America/Argentina/Buenos_Aires",
	"COR": "America/Argentina/Cordoba",
	"MDZ": "America/Argentina/Mendoza",
	"BRC": "America/Argentina/Salta",
	"LHR": "Europe/London",
	"LGW": "Europe/London",
	"CDG": "Europe/Paris",
	"MAD": "Europe/Madrid",
	"BCN": "Europe/Madrid",
	"FCO": "Europe/Rome",
	"AMS": "Europe/Amsterdam",
	"FRA": "Europe/Berlin",
	"JFK": "America/New_York",
	"EWR": "America/New_York",
	"MIA": "America/New_York",
	"ORD": "America/Chicago",
	"LAX": "America/Los_Angeles",
	"SFO": "America/Los_Angeles",
	"GRU": "America/Sao_Paulo",
	"GIG": "America/Sao_Paulo",
	"SCL": "America/Santiago",
	"LIM": "America/Lima",
	"BOG": "America/Bogota",
	"MEX": "America/Mexico_City",
	"CUN": "America/Cancun",
	"MCO": "America/New_York",
}

var weekdayAbbr = [...]string{"Dom", "Lun", "Mar", "Mié", "Jue", "Vie", "Sáb"}

var monthAbbr = [...]string{
	"", "Ene", "Feb", "Mar", "Abr", "May", "Jun",
	"Jul", "Ago", "Sep", "Oct", "Nov", "Dic",
}

// locationFor resolves the *time.Location for an IATA code, falling back to
// UTC (and ok=false) when the code is not in the closed table.
func locationFor(iata string) (*time.Location, bool) {
	name, known := iataTimezones[iata]
	if !known {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// ToLocal converts a UTC instant to the local time at the given IATA
// airport. Unknown airports return the instant unchanged, interpreted as
// UTC.
func ToLocal(instant time.Time, iata string) time.Time {
	loc, _ := locationFor(iata)
	return instant.In(loc)
}

// FormatHuman renders instant in the local time of iata as
// "<DayAbbr> D Mon HH:MM hs (IATA)", e.g. "Mar 8 Jul 22:05 hs (LHR)".
func FormatHuman(instant time.Time, iata string) string {
	local := ToLocal(instant, iata)
	day := weekdayAbbr[int(local.Weekday())]
	month := monthAbbr[int(local.Month())]
	return fmt.Sprintf("%s %d %s %02d:%02d hs (%s)", day, local.Day(), month, local.Hour(), local.Minute(), iata)
}

// FormatHumanClean renders instant in the local time of iata as
// "D Mon HH:MM hs", without the weekday abbreviation or the IATA suffix —
// used for the 24h reminder, where a leading weekday reads awkwardly in
// Spanish ("el Mar 8 Jul" vs "el 8 Jul").
func FormatHumanClean(instant time.Time, iata string) string {
	local := ToLocal(instant, iata)
	month := monthAbbr[int(local.Month())]
	return fmt.Sprintf("%d %s %02d:%02d hs", local.Day(), month, local.Hour(), local.Minute())
}

// ParseDeparture parses an ISO-8601 departure timestamp as submitted at
// ingress time and returns the equivalent UTC instant. A value carrying an
// explicit offset (e.g. "2026-08-01T14:30:00-03:00" or a trailing "Z") is
// trusted as-is and simply converted to UTC. A bare local timestamp with no
// offset (e.g. "2026-08-01T14:30:00") is interpreted as wall-clock time at
// the origin airport.
func ParseDeparture(raw string, originIATA string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}

	loc, _ := locationFor(originIATA)
	const localLayout = "2006-01-02T15:04:05"
	t, err := time.ParseInLocation(localLayout, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing departure_date %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// IsQuietHoursLocal returns true iff the local hour at iata falls in
// [20:00, 09:00). Unknown airports are never in quiet hours, since the
// fallback UTC offset would be an arbitrary guess about the passenger's
// actual local time.
func IsQuietHoursLocal(instant time.Time, iata string) bool {
	return IsQuietHoursInWindow(instant, iata, "20-09")
}

// IsQuietHoursInWindow is IsQuietHoursLocal generalized to the
// QUIET_HOURS_LOCAL configuration option, a "start-end" pair of local
// hours such as "20-09". A window that does not parse as two hours 0-23
// falls back to the 20-09 default rather than failing the check.
func IsQuietHoursInWindow(instant time.Time, iata, window string) bool {
	_, known := iataTimezones[iata]
	if !known {
		return false
	}
	start, end, ok := parseQuietWindow(window)
	if !ok {
		start, end = 20, 9
	}
	hour := ToLocal(instant, iata).Hour()
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func parseQuietWindow(window string) (start, end int, ok bool) {
	parts := strings.SplitN(window, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(parts[0])
	end, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || start < 0 || start > 23 || end < 0 || end > 23 {
		return 0, 0, false
	}
	return start, end, true
}
