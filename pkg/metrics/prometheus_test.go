package metrics

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderObservesMonitor(t *testing.T) {
	rec := NewPrometheusRecorder()
	m := NewMonitor(nil)
	m.SetObserver(rec)

	m.LogQuery("q")
	m.LogQuery("q2")
	m.LogToolOutcome("get_odds", "odds", OutcomeSuccess, 250)
	m.LogToolOutcome("get_odds", "odds", OutcomeError, 10)
	m.LogError("boom", nil)

	assert.InDelta(t, 2.0, testutil.ToFloat64(rec.queriesTotal), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.errorsTotal), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.toolCallsTotal.WithLabelValues("get_odds", "odds", OutcomeSuccess)), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.toolCallsTotal.WithLabelValues("get_odds", "odds", OutcomeError)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.toolCallDuration))
}

func TestPrometheusRecorderModelRequests(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.ObserveModelRequest("claude-sonnet-4", 100, 40, true, "", time.Second)
	rec.ObserveModelRequest("claude-sonnet-4", 100, 0, false, "rate_limit", time.Second)

	assert.InDelta(t, 100.0, testutil.ToFloat64(rec.modelTokens.WithLabelValues("claude-sonnet-4", "input")), 0)
	assert.InDelta(t, 40.0, testutil.ToFloat64(rec.modelTokens.WithLabelValues("claude-sonnet-4", "output")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.modelRequests.WithLabelValues("claude-sonnet-4", OutcomeError, "rate_limit")), 0)
}

func TestPrometheusRecorderCircuitState(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.SetCircuitState("social", 1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.circuitState.WithLabelValues("social")), 0)
}

func TestPrometheusRecorderWriteText(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.ObserveQuery()

	var buf bytes.Buffer
	require.NoError(t, rec.WriteText(&buf))
	assert.Contains(t, buf.String(), "# TYPE boxonomics_queries_total counter")
	assert.Contains(t, buf.String(), "boxonomics_queries_total 1")
}

func TestPrometheusRecorderHandler(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.ObserveToolCall("get_news", "news", OutcomeSuccess, 20*time.Millisecond)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `boxonomics_tool_calls_total{outcome="success",provider="news",tool="get_news"} 1`)
}
