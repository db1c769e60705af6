package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/flightops/tripnotifier/internal/metrics"
)

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusRequestTimeout, false},
	}

	for _, tc := range cases {
		err := ClassifyHTTPStatus(tc.status, errors.New("boom"))
		assert.Equal(t, tc.retryable, IsRetryable(err))
		assert.Equal(t, !tc.retryable, IsTerminal(err))
	}
}

func TestExecutor_Run_SucceedsWithoutRetry(t *testing.T) {
	exec := NewExecutor("svc", Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond}, testMetrics(), zaptest.NewLogger(t))
	calls := 0
	value, attempts, err := exec.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExecutor_Run_RetriesThenSucceeds(t *testing.T) {
	exec := NewExecutor("svc-retry", Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: true}, testMetrics(), zaptest.NewLogger(t))
	calls := 0
	value, attempts, err := exec.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, Retryable(errors.New("transient"))
		}
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, 3, attempts)
}

func TestExecutor_Run_TerminalStopsImmediately(t *testing.T) {
	exec := NewExecutor("svc-terminal", Policy{MaxAttempts: 5, Base: time.Millisecond, Cap: 10 * time.Millisecond}, testMetrics(), zaptest.NewLogger(t))
	calls := 0
	_, attempts, err := exec.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, Terminal(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestExecutor_Run_ExhaustsAttempts(t *testing.T) {
	exec := NewExecutor("svc-exhaust", Policy{MaxAttempts: 2, Base: time.Millisecond, Cap: 5 * time.Millisecond}, testMetrics(), zaptest.NewLogger(t))
	calls := 0
	_, attempts, err := exec.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, Retryable(errors.New("still down"))
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}
