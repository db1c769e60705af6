// Package engine orchestrates one polling cycle for a single trip:
// fetch, detect, persist, dispatch, reschedule.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flightops/tripnotifier/internal/config"
	"github.com/flightops/tripnotifier/internal/delivery"
	"github.com/flightops/tripnotifier/internal/detector"
	"github.com/flightops/tripnotifier/internal/flightdata"
	"github.com/flightops/tripnotifier/internal/idempotency"
	"github.com/flightops/tripnotifier/internal/metrics"
	"github.com/flightops/tripnotifier/internal/models"
	"github.com/flightops/tripnotifier/internal/retry"
	"github.com/flightops/tripnotifier/internal/scheduler"
	"github.com/flightops/tripnotifier/internal/store"
	"github.com/flightops/tripnotifier/internal/templates"
	"github.com/flightops/tripnotifier/internal/timez"
)

// cityNames resolves a destination IATA code to a human city name for the
// landing-welcome message; unlisted codes fall back to the code itself.
var cityNames = map[string]string{
	"EZE": "Buenos Aires", "AEP": "Buenos Aires", "COR": "Córdoba", "MDZ": "Mendoza",
	"LHR": "Londres", "LGW": "Londres", "CDG": "París", "MAD": "Madrid", "BCN": "Barcelona",
	"FCO": "Roma", "AMS": "Ámsterdam", "FRA": "Fráncfort", "JFK": "Nueva York", "EWR": "Nueva York",
	"MIA": "Miami", "ORD": "Chicago", "LAX": "Los Ángeles", "SFO": "San Francisco",
	"GRU": "São Paulo", "GIG": "Río de Janeiro", "SCL": "Santiago", "LIM": "Lima",
	"BOG": "Bogotá", "MEX": "Ciudad de México", "CUN": "Cancún", "MCO": "Orlando",
}

const defaultGatePlaceholder = "por confirmar"
const defaultStayAddress = "la dirección registrada en tu reserva"

// Engine wires together the flight-data client, template registry,
// delivery client, retry executors, and the trip/status/notification
// stores to process one due trip per call to ProcessTrip.
type Engine struct {
	store    store.Store
	flight   *flightdata.Client
	delivery *delivery.Client

	flightExecutor    *retry.Executor
	messagingExecutor *retry.Executor

	notify  config.NotifyConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New builds an Engine from its collaborators and the notify policy.
func New(s store.Store, flight *flightdata.Client, deliveryClient *delivery.Client, flightExecutor, messagingExecutor *retry.Executor, notify config.NotifyConfig, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:             s,
		flight:            flight,
		delivery:          deliveryClient,
		flightExecutor:    flightExecutor,
		messagingExecutor: messagingExecutor,
		notify:            notify,
		metrics:           m,
		logger:            logger,
	}
}

// ProcessTrip implements scheduler.CycleHandler: it drives one trip
// through fetch, detect, persist, dispatch, and reschedule. Flight-data
// provider errors never escape this method — the trip is simply
// rescheduled and the cycle moves on.
func (e *Engine) ProcessTrip(ctx context.Context, trip *models.Trip) (err error) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		e.metrics.EngineCyclesTotal.WithLabelValues(outcome).Inc()
		e.metrics.EngineCycleDuration.Observe(time.Since(start).Seconds())
	}()

	previous, err := e.store.LatestStatus(ctx, trip.ID)
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("loading previous status: %w", err)
	}

	localDate := timez.ToLocal(trip.DepartureUTC, trip.OriginIATA).Format("2006-01-02")
	currentRaw, _, fetchErr := e.flightExecutor.Run(ctx, func(ctx context.Context) (interface{}, error) {
		return e.flight.GetFlightStatus(ctx, trip.FlightNumber, localDate)
	})
	if fetchErr != nil {
		e.logger.Warn("flight-data provider unavailable, rescheduling only",
			zap.String("trip_id", trip.ID), zap.Error(fetchErr))
		outcome = "provider_unavailable"
		return e.reschedule(ctx, trip, nil)
	}

	current, _ := currentRaw.(*flightdata.Snapshot)
	if current == nil {
		return e.reschedule(ctx, trip, nil)
	}

	previousSnapshot := toFlightdataSnapshot(previous)
	changes := detector.Consolidate(flightdata.DetectChanges(current, previousSnapshot))

	now := time.Now().UTC()
	if err := e.store.AppendStatus(ctx, &models.FlightStatusSnapshot{
		ID:              uuid.NewString(),
		TripID:          trip.ID,
		Status:          current.Status,
		GateOrigin:      current.GateOrigin,
		GateDestination: current.GateDestination,
		EstimatedOut:    current.EstimatedOut,
		ActualOut:       current.ActualOut,
		EstimatedIn:     current.EstimatedIn,
		ActualIn:        current.ActualIn,
		RawPayload:      current.Raw,
		RecordedAt:      now,
		Source:          "poll",
	}); err != nil {
		return fmt.Errorf("persisting flight status snapshot: %w", err)
	}

	trip = e.applyFreshState(ctx, trip, current)

	for _, change := range changes {
		if change.MappedNotification == "" {
			continue
		}
		if err := e.dispatchChange(ctx, trip, change, current); err != nil {
			e.logger.Error("dispatching change failed",
				zap.String("trip_id", trip.ID), zap.String("kind", string(change.MappedNotification)), zap.Error(err))
		}
	}

	if e.reminderDue(trip, now) {
		if err := e.dispatchReminder(ctx, trip); err != nil {
			e.logger.Error("dispatching 24h reminder failed", zap.String("trip_id", trip.ID), zap.Error(err))
		}
	}

	return e.reschedule(ctx, trip, current)
}

// applyFreshState updates status/gate with non-null fresh values and
// returns the trip with those fields reflected in memory, so the rest of
// this cycle sees the post-update state.
func (e *Engine) applyFreshState(ctx context.Context, trip *models.Trip, current *flightdata.Snapshot) *models.Trip {
	newStatus := flightdata.ClassifyStatus(current.Status)
	patch := store.TripPatch{}
	changed := false

	if newStatus != "" && newStatus != trip.Status {
		patch.Status = &newStatus
		trip.Status = newStatus
		changed = true
	}
	if current.GateOrigin != nil && *current.GateOrigin != "" {
		patch.Gate = current.GateOrigin
		trip.Gate = current.GateOrigin
		changed = true
	}

	if changed {
		if err := e.store.UpdateTrip(ctx, trip.ID, patch); err != nil {
			e.logger.Error("updating trip state failed", zap.String("trip_id", trip.ID), zap.Error(err))
		}
	}
	return trip
}

// reschedule recomputes next_check_at and persists it.
func (e *Engine) reschedule(ctx context.Context, trip *models.Trip, current *flightdata.Snapshot) error {
	var estArrival *time.Time
	if current != nil {
		estArrival = current.EstimatedIn
		if estArrival == nil {
			estArrival = current.ActualIn
		}
	}

	next := scheduler.NextCheck(trip.DepartureUTC, time.Now().UTC(), trip.Status, estArrival)
	patch := store.TripPatch{}
	if next == nil {
		patch.ClearNextCheckAt = true
	} else {
		patch.NextCheckAt = next
	}
	return e.store.UpdateTrip(ctx, trip.ID, patch)
}

func (e *Engine) reminderDue(trip *models.Trip, now time.Time) bool {
	if trip.IsTerminal() || trip.Status == models.StatusBoarding {
		return false
	}
	leadHours := e.notify.ReminderLeadHours
	if leadHours <= 0 {
		leadHours = 24
	}
	return !now.Before(trip.DepartureUTC.Add(-time.Duration(leadHours) * time.Hour))
}

// ConfirmReservation dispatches the RESERVATION_CONFIRMATION notification
// for a newly created trip. It is called synchronously by the ingress
// handler so the HTTP response can report the send outcome; it shares the
// idempotency/retry/logging pipeline every other dispatch uses, so calling
// it again for the same trip is a silent no-op rather than a second
// message.
func (e *Engine) ConfirmReservation(ctx context.Context, trip *models.Trip) (string, error) {
	slotValues := map[string]string{
		"name":                  trip.ClientName,
		"flight":                trip.FlightNumber,
		"origin":                trip.OriginIATA,
		"destination":           trip.DestinationIATA,
		"local_departure_human": timez.FormatHuman(trip.DepartureUTC, trip.OriginIATA),
	}
	hashPayload := map[string]string{"event": "reservation_confirmation"}

	return e.send(ctx, trip, models.KindReservationConfirmation, slotValues, nil, hashPayload, "")
}

// SendSingle dispatches one notification of the given kind outside the
// polling cycle, for callers that learn about an event through another
// channel — an itinerary becoming ready, an externally signalled change.
// It runs the same suppression/idempotency/retry/logging pipeline as the
// scheduler-driven dispatches, so repeated calls for the same event are
// a no-op after the first successful send. extra supplies any optional
// template slots beyond the trip's own fields.
func (e *Engine) SendSingle(ctx context.Context, tripID string, kind models.NotificationKind, extra map[string]string) (string, error) {
	trip, err := e.store.TripByID(ctx, tripID)
	if err != nil {
		return "", fmt.Errorf("loading trip: %w", err)
	}

	slotValues := map[string]string{
		"name":   trip.ClientName,
		"flight": trip.FlightNumber,
	}
	hashPayload := map[string]string{"event": strings.ToLower(string(kind))}

	return e.send(ctx, trip, kind, slotValues, extra, hashPayload, "")
}

func (e *Engine) dispatchReminder(ctx context.Context, trip *models.Trip) error {
	departureHuman := timez.FormatHumanClean(trip.DepartureUTC, trip.OriginIATA)
	slotValues := map[string]string{
		"name":                  trip.ClientName,
		"origin":                trip.OriginIATA,
		"local_departure_clean": departureHuman,
		"destination":           trip.DestinationIATA,
	}
	hashPayload := map[string]string{"lead_hours": fmt.Sprintf("%d", e.notify.ReminderLeadHours)}

	_, err := e.send(ctx, trip, models.KindReminder24h, slotValues, nil, hashPayload, "")
	return err
}

func (e *Engine) dispatchChange(ctx context.Context, trip *models.Trip, change models.Change, current *flightdata.Snapshot) error {
	switch change.MappedNotification {
	case models.KindGateChange:
		slotValues := map[string]string{"name": trip.ClientName, "flight": trip.FlightNumber, "new_gate": change.NewValue}
		hashPayload := map[string]string{"old": change.OldValue, "new": change.NewValue}
		_, err := e.send(ctx, trip, models.KindGateChange, slotValues, nil, hashPayload, "")
		return err

	case models.KindCancelled:
		slotValues := map[string]string{"name": trip.ClientName, "flight": trip.FlightNumber}
		hashPayload := map[string]string{"event": "cancelled"}
		_, err := e.send(ctx, trip, models.KindCancelled, slotValues, nil, hashPayload, "")
		return err

	case models.KindBoarding:
		gate := e.resolveBoardingGate(ctx, trip)
		slotValues := map[string]string{"flight": trip.FlightNumber, "gate": gate}
		hashPayload := map[string]string{"event": "boarding"}
		_, err := e.send(ctx, trip, models.KindBoarding, slotValues, nil, hashPayload, "")
		return err

	case models.KindLandingWelcome:
		city := cityNames[trip.DestinationIATA]
		if city == "" {
			city = trip.DestinationIATA
		}
		stay := trip.Metadata["stay"]
		if stay == "" {
			stay = defaultStayAddress
		}
		slotValues := map[string]string{"destination_city": city, "stay_address": stay}
		hashPayload := map[string]string{"event": "landed"}
		_, err := e.send(ctx, trip, models.KindLandingWelcome, slotValues, nil, hashPayload, "")
		return err

	case models.KindDelayed:
		return e.dispatchDelay(ctx, trip, current)

	default:
		return nil
	}
}

func (e *Engine) dispatchDelay(ctx context.Context, trip *models.Trip, current *flightdata.Snapshot) error {
	estOut := current.EstimatedOut
	if estOut == nil {
		now := time.Now().UTC()
		estOut = &now
	}
	etaRound := roundDownTo5Minutes(*estOut).UTC().Format(time.RFC3339)

	cooldown := e.notify.DelayCooldown.Duration
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	recentCooldown, err := e.store.RecentDelaySends(ctx, trip.ID, cooldown)
	if err != nil {
		return fmt.Errorf("checking delay cooldown: %w", err)
	}

	sameETAWindow := e.notify.DelaySameETAWindow.Duration
	if sameETAWindow <= 0 {
		sameETAWindow = 2 * time.Hour
	}
	recentWindow, err := e.store.RecentDelaySends(ctx, trip.ID, sameETAWindow)
	if err != nil {
		return fmt.Errorf("checking delay dedup window: %w", err)
	}

	suppressReason := ""
	if len(recentCooldown) > 0 {
		suppressReason = "delay_cooldown"
	} else {
		for _, sent := range recentWindow {
			if sent.EtaRound == etaRound {
				suppressReason = "delay_same_eta"
				break
			}
		}
	}

	slotValues := map[string]string{
		"name":          trip.ClientName,
		"flight":        trip.FlightNumber,
		"new_eta_human": timez.FormatHuman(*estOut, trip.OriginIATA),
	}
	hashPayload := map[string]string{"eta_round": etaRound}

	_, err = e.send(ctx, trip, models.KindDelayed, slotValues, nil, hashPayload, suppressReason)
	return err
}

func (e *Engine) resolveBoardingGate(ctx context.Context, trip *models.Trip) string {
	if trip.Gate != nil && *trip.Gate != "" {
		return *trip.Gate
	}
	for _, key := range []string{"gate_origin", "gate", "departure_gate", "terminal_gate", "boarding_gate"} {
		if v := trip.Metadata[key]; v != "" {
			return v
		}
	}

	localDate := timez.ToLocal(trip.DepartureUTC, trip.OriginIATA).Format("2006-01-02")
	fresh, err := e.flight.GetFlightStatus(ctx, trip.FlightNumber, localDate)
	if err == nil && fresh != nil && fresh.GateOrigin != nil && *fresh.GateOrigin != "" {
		if updateErr := e.store.UpdateTrip(ctx, trip.ID, store.TripPatch{Gate: fresh.GateOrigin}); updateErr == nil {
			trip.Gate = fresh.GateOrigin
		}
		return *fresh.GateOrigin
	}

	return defaultGatePlaceholder
}

// send runs the common dispatch pipeline shared by every notification
// kind: quiet-hours suppression (reminders only), idempotency check,
// message build, retry-wrapped send, and logging. preSuppressReason lets
// callers (delay dedup) veto the send before the idempotency check runs.
// send returns the resulting delivery status (SENT/FAILED/SUPPRESSED, or
// "" when the idempotency check short-circuited the pipeline) alongside
// any error that prevented the pipeline from completing at all. A failed
// or suppressed delivery is reported via the returned status, not an
// error — per the failure semantics in the dispatch pipeline, the caller
// never re-sends on a FAILED status.
func (e *Engine) send(ctx context.Context, trip *models.Trip, kind models.NotificationKind, slotValues, extra, hashPayload map[string]string, preSuppressReason string) (string, error) {
	now := time.Now().UTC()
	suppressReason := preSuppressReason

	quietWindow := e.notify.QuietHoursLocal
	if quietWindow == "" {
		quietWindow = "20-09"
	}
	if suppressReason == "" && kind == models.KindReminder24h && timez.IsQuietHoursInWindow(now, trip.OriginIATA, quietWindow) {
		suppressReason = "quiet_hours"
	}

	hash, err := idempotency.Hash(trip.ID, string(kind), hashPayload)
	if err != nil {
		return "", fmt.Errorf("computing idempotency hash: %w", err)
	}

	entry := &models.NotificationLogEntry{
		ID:              uuid.NewString(),
		TripID:          trip.ID,
		Kind:            kind,
		SentAt:          now,
		IdempotencyHash: hash,
		EtaRound:        hashPayload["eta_round"],
	}

	if suppressReason != "" {
		entry.DeliveryStatus = models.DeliverySuppressed
		entry.SuppressReason = suppressReason
		e.metrics.DispatchTotal.WithLabelValues(string(kind), models.DeliverySuppressed).Inc()
		e.metrics.SuppressedTotal.WithLabelValues(string(kind), suppressReason).Inc()
		if err := e.store.Append(ctx, entry); err != nil {
			return "", err
		}
		return models.DeliverySuppressed, nil
	}

	alreadySent, err := e.store.FindSent(ctx, trip.ID, kind, hash)
	if err != nil {
		return "", fmt.Errorf("checking idempotency: %w", err)
	}
	if alreadySent {
		return "", nil
	}

	msg, err := templates.Format(kind, slotValues, extra)
	if err != nil {
		return "", fmt.Errorf("building message: %w", err)
	}
	entry.TemplateName = msg.TemplateName

	resultRaw, attempts, sendErr := e.messagingExecutor.Run(ctx, func(ctx context.Context) (interface{}, error) {
		res, err := e.delivery.SendTemplate(ctx, trip.WhatsApp, msg.TemplateID, msg.Variables)
		if err != nil {
			return nil, retry.Retryable(err)
		}
		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return res, nil
		}
		return res, retry.ClassifyHTTPStatus(res.StatusCode, fmt.Errorf("messaging gateway error: %s", res.ErrorMessage))
	})
	entry.RetryCount = attempts - 1

	if sendErr != nil {
		entry.DeliveryStatus = models.DeliveryFailed
		entry.ErrorText = sendErr.Error()
	} else {
		result := resultRaw.(delivery.Result)
		entry.DeliveryStatus = models.DeliverySent
		entry.ProviderMessageID = result.ProviderID
	}
	e.metrics.DispatchTotal.WithLabelValues(string(kind), entry.DeliveryStatus).Inc()
	e.metrics.DispatchRetryCount.WithLabelValues(string(kind)).Observe(float64(entry.RetryCount))

	if logErr := e.store.Append(ctx, entry); logErr != nil {
		// A user-visible duplicate is worse than a missing log entry, so a
		// logging failure after a successful send is not retried here.
		e.logger.Warn("failed to record notification log entry", zap.String("trip_id", trip.ID), zap.Error(logErr))
	}

	return entry.DeliveryStatus, nil
}

func roundDownTo5Minutes(t time.Time) time.Time {
	return t.Truncate(5 * time.Minute)
}

func toFlightdataSnapshot(s *models.FlightStatusSnapshot) *flightdata.Snapshot {
	if s == nil {
		return nil
	}
	return &flightdata.Snapshot{
		Status:          s.Status,
		GateOrigin:      s.GateOrigin,
		GateDestination: s.GateDestination,
		EstimatedOut:    s.EstimatedOut,
		ActualOut:       s.ActualOut,
		EstimatedIn:     s.EstimatedIn,
		ActualIn:        s.ActualIn,
		Raw:             s.RawPayload,
	}
}
