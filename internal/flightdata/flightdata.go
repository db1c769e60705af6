// Package flightdata wraps the external flight-status provider behind a
// short-TTL cache and turns HTTP failures into the retry package's
// two-level result.
package flightdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flightops/tripnotifier/internal/metrics"
	"github.com/flightops/tripnotifier/internal/models"
	"github.com/flightops/tripnotifier/internal/retry"
)

// Snapshot is the provider's raw view of a flight, prior to being
// persisted as a models.FlightStatusSnapshot.
type Snapshot struct {
	Ident           string
	Status          string
	GateOrigin      *string
	GateDestination *string
	EstimatedOut    *time.Time
	ActualOut       *time.Time
	EstimatedIn     *time.Time
	ActualIn        *time.Time
	Raw             string
}

// HTTPClient is satisfied by *http.Client; tests supply a stub.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches flight status from the configured provider, caching
// responses for a short window to bound outbound call volume.
type Client struct {
	http    HTTPClient
	baseURL string
	apiKey  string
	ttl     time.Duration
	metrics *metrics.Metrics

	mu    sync.RWMutex
	cache map[string]cacheEntry

	hits, misses, savedCalls int64
	statsMu                  sync.Mutex
}

type cacheEntry struct {
	snapshot  *Snapshot
	expiresAt time.Time
}

// NewClient builds a provider client with the given cache TTL.
func NewClient(httpClient HTTPClient, baseURL, apiKey string, ttl time.Duration, m *metrics.Metrics) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		ttl:     ttl,
		metrics: m,
		cache:   make(map[string]cacheEntry),
	}
}

// Stats reports cumulative cache hit/miss/saved-call counts.
type Stats struct {
	Hits, Misses, SavedCalls int64
}

// Stats returns a snapshot of the cache's cumulative counters.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, SavedCalls: c.savedCalls}
}

func cacheKey(designator, localDate string) string {
	return designator + "|" + localDate
}

// GetFlightStatus returns the current status for a flight designator on a
// given local date, serving from cache within the TTL window. A nil
// snapshot with a nil error means the provider has no data for this
// flight (not an error condition).
func (c *Client) GetFlightStatus(ctx context.Context, designator, localDate string) (*Snapshot, error) {
	key := cacheKey(designator, localDate)

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		c.statsMu.Lock()
		c.hits++
		c.savedCalls++
		c.statsMu.Unlock()
		c.metrics.FlightDataCacheHitsTotal.Inc()
		c.metrics.FlightDataSavedCallsTotal.Inc()
		return entry.snapshot, nil
	}

	c.statsMu.Lock()
	c.misses++
	c.statsMu.Unlock()
	c.metrics.FlightDataCacheMissesTotal.Inc()

	snap, err := c.fetch(ctx, designator, localDate)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{snapshot: snap, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return snap, nil
}

type providerResponse struct {
	Ident           string  `json:"ident"`
	Status          string  `json:"status"`
	GateOrigin      *string `json:"gate_origin"`
	GateDestination *string `json:"gate_destination"`
	EstimatedOut    *string `json:"estimated_out"`
	ActualOut       *string `json:"actual_out"`
	EstimatedIn     *string `json:"estimated_in"`
	ActualIn        *string `json:"actual_in"`
}

func (c *Client) fetch(ctx context.Context, designator, localDate string) (*Snapshot, error) {
	url := fmt.Sprintf("%s/flights/%s?date=%s", c.baseURL, designator, localDate)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("building flight-status request: %w", err))
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.FlightDataCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FlightDataCallsTotal.WithLabelValues("error").Inc()
		return nil, retry.Retryable(fmt.Errorf("flight-status request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.metrics.FlightDataCallsTotal.WithLabelValues("not_found").Inc()
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.FlightDataCallsTotal.WithLabelValues("error").Inc()
		return nil, retry.ClassifyHTTPStatus(resp.StatusCode, fmt.Errorf("flight-status provider returned %d", resp.StatusCode))
	}
	c.metrics.FlightDataCallsTotal.WithLabelValues("ok").Inc()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, retry.Retryable(fmt.Errorf("reading flight-status response: %w", err))
	}

	var parsed providerResponse
	if err := json.Unmarshal(body.Bytes(), &parsed); err != nil {
		return nil, retry.Terminal(fmt.Errorf("decoding flight-status response: %w", err))
	}

	return &Snapshot{
		Ident:           parsed.Ident,
		Status:          parsed.Status,
		GateOrigin:      parsed.GateOrigin,
		GateDestination: parsed.GateDestination,
		EstimatedOut:    parseTimePtr(parsed.EstimatedOut),
		ActualOut:       parseTimePtr(parsed.ActualOut),
		EstimatedIn:     parseTimePtr(parsed.EstimatedIn),
		ActualIn:        parseTimePtr(parsed.ActualIn),
		Raw:             body.String(),
	}, nil
}

func parseTimePtr(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

// ClassifyStatus maps a free-text provider status string to the trip
// lifecycle status via a fixed, case-insensitive keyword set.
func ClassifyStatus(raw string) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "cancel"):
		return models.StatusCancelled
	case strings.Contains(lower, "delay"), strings.Contains(lower, "late"):
		return models.StatusDelayed
	case strings.Contains(lower, "board"):
		return models.StatusBoarding
	case strings.Contains(lower, "landed"), strings.Contains(lower, "arrived"), strings.Contains(lower, "completed"):
		return models.StatusLanded
	default:
		return models.StatusScheduled
	}
}

// DetectChanges compares the current snapshot against the previous one
// and emits one Change per differing field. A nil previous is the first
// observation of the flight: nothing has "changed" yet, so only a status
// that warrants a notification on its own (cancellation, boarding,
// delay, landing) produces a Change.
func DetectChanges(current, previous *Snapshot) []models.Change {
	if current == nil {
		return nil
	}

	var changes []models.Change

	currentStatus := ClassifyStatus(current.Status)
	if previous == nil {
		if kind := notificationFor(currentStatus); kind != "" {
			changes = append(changes, models.Change{
				Kind:               changeKindFor(currentStatus),
				OldValue:           "",
				NewValue:           currentStatus,
				MappedNotification: kind,
			})
		}
		return changes
	}

	previousStatus := ClassifyStatus(previous.Status)
	if currentStatus != previousStatus {
		changes = append(changes, models.Change{
			Kind:               changeKindFor(currentStatus),
			OldValue:           previousStatus,
			NewValue:           currentStatus,
			MappedNotification: notificationFor(currentStatus),
		})
	}

	if !stringPtrEqual(previous.GateOrigin, current.GateOrigin) {
		changes = append(changes, models.Change{
			Kind:               models.ChangeGate,
			OldValue:           derefOr(previous.GateOrigin, ""),
			NewValue:           derefOr(current.GateOrigin, ""),
			MappedNotification: models.KindGateChange,
		})
	}

	if !timePtrEqual(previous.EstimatedOut, current.EstimatedOut) {
		changes = append(changes, models.Change{
			Kind:               models.ChangeDepartureTime,
			OldValue:           formatTimePtr(previous.EstimatedOut),
			NewValue:           formatTimePtr(current.EstimatedOut),
			MappedNotification: models.KindDelayed,
		})
	}

	return changes
}

func changeKindFor(status string) string {
	switch status {
	case models.StatusCancelled:
		return models.ChangeCancellation
	case models.StatusBoarding:
		return models.ChangeBoarding
	case models.StatusLanded:
		return models.ChangeLanding
	default:
		return models.ChangeStatus
	}
}

func notificationFor(status string) models.NotificationKind {
	switch status {
	case models.StatusCancelled:
		return models.KindCancelled
	case models.StatusBoarding:
		return models.KindBoarding
	case models.StatusLanded:
		return models.KindLandingWelcome
	case models.StatusDelayed:
		return models.KindDelayed
	default:
		return ""
	}
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
