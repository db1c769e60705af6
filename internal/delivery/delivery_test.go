package delivery

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightops/tripnotifier/internal/metrics"
)

func testMetrics() *metrics.Metrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

type stubHTTPClient struct {
	lastRequest *http.Request
	response    *http.Response
	err         error
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	s.lastRequest = req
	return s.response, s.err
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestSendTemplate_Success(t *testing.T) {
	stub := &stubHTTPClient{response: jsonResponse(200, `{"provider_id":"msg-1","status":"queued"}`)}
	client := NewClient(stub, "https://gateway.example", "key", testMetrics())

	result, err := client.SendTemplate(context.Background(), "+549...", "tpl_delayed", map[string]string{"1": "Jane"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", result.ProviderID)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "/messages/template", stub.lastRequest.URL.Path)
}

func TestSendText_NonDefaultPath(t *testing.T) {
	stub := &stubHTTPClient{response: jsonResponse(200, `{"provider_id":"msg-2","status":"queued"}`)}
	client := NewClient(stub, "https://gateway.example", "key", testMetrics())

	_, err := client.SendText(context.Background(), "+549...", "hello")
	require.NoError(t, err)
	assert.Equal(t, "/messages/text", stub.lastRequest.URL.Path)
}

func TestSendMedia_NonDefaultPath(t *testing.T) {
	stub := &stubHTTPClient{response: jsonResponse(200, `{"provider_id":"msg-3","status":"queued"}`)}
	client := NewClient(stub, "https://gateway.example", "key", testMetrics())

	_, err := client.SendMedia(context.Background(), "+549...", "https://img", "caption")
	require.NoError(t, err)
	assert.Equal(t, "/messages/media", stub.lastRequest.URL.Path)
}

func TestSend_NonSuccessStatusSurfacedInResultNotAsError(t *testing.T) {
	stub := &stubHTTPClient{response: jsonResponse(500, `{"error_code":"upstream_error"}`)}
	client := NewClient(stub, "https://gateway.example", "key", testMetrics())

	result, err := client.SendTemplate(context.Background(), "+549...", "tpl_delayed", nil)
	require.NoError(t, err)
	assert.Equal(t, 500, result.StatusCode)
	assert.Equal(t, "upstream_error", result.ErrorCode)
}
