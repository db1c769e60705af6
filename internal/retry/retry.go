// Package retry wraps external calls with bounded exponential backoff plus
// jitter and a circuit breaker, replacing exceptions-for-control-flow with an
// explicit two-level result: a caller-visible error is either retryable or
// terminal, never a plain panic.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/flightops/tripnotifier/internal/metrics"
)

// backoffFactor is the exponential growth factor applied between attempts.
// The per-service base, cap, and jitter toggle are configurable; the factor
// itself is not, matching the single formula this system specifies.
const backoffFactor = 2.0

// Policy is a named backoff policy for one external service.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      bool
}

// kind classifies an error for retry purposes.
type kind int

const (
	unknownKind kind = iota
	retryableKind
	terminalKind
)

type classifiedError struct {
	err  error
	kind kind
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Retryable wraps err as a transient failure worth retrying.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, kind: retryableKind}
}

// Terminal wraps err as a failure the caller should not retry.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, kind: terminalKind}
}

// IsRetryable reports whether err (or a wrapped cause) was classified retryable.
func IsRetryable(err error) bool {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind == retryableKind
	}
	return false
}

// IsTerminal reports whether err (or a wrapped cause) was classified terminal.
func IsTerminal(err error) bool {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind == terminalKind
	}
	return false
}

// ClassifyHTTPStatus wraps err (or a synthesized status error when err is
// nil) as Retryable for 429, 500, 502, 503 and 504 responses and Terminal
// for any other non-2xx status (other 5xx codes included), per this
// service's error taxonomy: 4xx except 429 is the caller's fault and
// retrying cannot fix it.
func ClassifyHTTPStatus(statusCode int, err error) error {
	if err == nil {
		err = fmt.Errorf("unexpected status code %d", statusCode)
	}
	if isRetryableStatus(statusCode) {
		return Retryable(err)
	}
	return Terminal(err)
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	default:
		return false
	}
}

// Executor runs operations under a bounded-attempt backoff policy wrapped in
// a circuit breaker, so a sustained outage on one external service stops
// burning the retry budget of every trip in a cycle.
type Executor struct {
	name    string
	policy  Policy
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewExecutor builds an Executor for one named external service.
func NewExecutor(name string, policy Policy, m *metrics.Metrics, logger *zap.Logger) *Executor {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Executor{
		name:    name,
		policy:  policy,
		breaker: gobreaker.NewCircuitBreaker(settings),
		metrics: m,
		logger:  logger,
	}
}

// Op is an operation a caller wants retried. It must itself classify its
// failures via Retryable/Terminal (or ClassifyHTTPStatus) so Run knows
// whether to try again.
type Op func(ctx context.Context) (interface{}, error)

// Run executes op, retrying on Retryable errors up to the policy's
// MaxAttempts with exponential backoff (jittered when the policy enables
// it), short-circuiting
// immediately on Terminal errors or an open circuit. It returns the
// operation's value, the number of attempts made, and the final error.
func (e *Executor) Run(ctx context.Context, op Op) (value interface{}, attempts int, err error) {
	defer func() {
		e.metrics.RetryAttemptsTotal.WithLabelValues(e.name).Observe(float64(attempts))
		e.metrics.CircuitBreakerState.WithLabelValues(e.name).Set(float64(e.breaker.State()))
	}()

	var lastErr error

	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		result, cbErr := e.breaker.Execute(func() (interface{}, error) { return op(ctx) })
		if cbErr == nil {
			return result, attempt + 1, nil
		}

		if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
			e.logger.Warn("circuit breaker open, failing fast",
				zap.String("service", e.name),
				zap.Int("attempt", attempt+1),
			)
			return nil, attempt + 1, cbErr
		}

		lastErr = cbErr
		if !IsRetryable(cbErr) {
			return nil, attempt + 1, cbErr
		}

		if attempt == e.policy.MaxAttempts-1 {
			break
		}

		backoff := computeBackoff(attempt, e.policy)
		e.logger.Warn("retryable failure, backing off",
			zap.String("service", e.name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(cbErr),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, attempt + 1, ctx.Err()
		}
	}

	return nil, e.policy.MaxAttempts, lastErr
}

// computeBackoff implements min(base * factor^attempt, cap), multiplied by a
// uniform(0.5, 1.5) jitter factor when the policy enables jitter.
func computeBackoff(attempt int, policy Policy) time.Duration {
	backoff := float64(policy.Base) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(policy.Cap) {
		backoff = float64(policy.Cap)
	}
	if policy.Jitter {
		// nolint: gosec // jitter does not need cryptographic randomness.
		backoff *= 0.5 + rand.Float64()
	}
	return time.Duration(backoff)
}
