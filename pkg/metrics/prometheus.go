package metrics

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// PrometheusRecorder exposes monitor events and model calls as Prometheus collectors on a dedicated registry.
type PrometheusRecorder struct {
	registry         *prometheus.Registry
	queriesTotal     prometheus.Counter
	errorsTotal      prometheus.Counter
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
	modelRequests    *prometheus.CounterVec
	modelTokens      *prometheus.CounterVec
	modelRequestDur  *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		queriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxonomics_queries_total",
			Help: "Total number of user queries",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boxonomics_errors_total",
			Help: "Total number of errors logged by the monitor",
		}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxonomics_tool_calls_total",
			Help: "Total number of tool calls by tool, provider and outcome",
		}, []string{"tool", "provider", "outcome"}),
		toolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxonomics_tool_call_duration_seconds",
			Help:    "Duration of tool calls in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool", "provider"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "boxonomics_circuit_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open)",
		}, []string{"provider"}),
		modelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxonomics_model_requests_total",
			Help: "Total number of model endpoint requests",
		}, []string{"model", "status", "error_type"}),
		modelTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxonomics_model_tokens_total",
			Help: "Total tokens exchanged with the model endpoint",
		}, []string{"model", "type"}),
		modelRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxonomics_model_request_duration_seconds",
			Help:    "Duration of model endpoint requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
	}
	p.registry.MustRegister(
		p.queriesTotal, p.errorsTotal, p.toolCallsTotal, p.toolCallDuration,
		p.circuitState, p.modelRequests, p.modelTokens, p.modelRequestDur,
	)
	return p
}

// ObserveQuery implements Observer.
func (p *PrometheusRecorder) ObserveQuery() {
	p.queriesTotal.Inc()
}

// ObserveToolCall implements Observer.
func (p *PrometheusRecorder) ObserveToolCall(tool, provider, outcome string, duration time.Duration) {
	p.toolCallsTotal.WithLabelValues(tool, provider, outcome).Inc()
	p.toolCallDuration.WithLabelValues(tool, provider).Observe(duration.Seconds())
}

// ObserveError implements Observer.
func (p *PrometheusRecorder) ObserveError() {
	p.errorsTotal.Inc()
}

// SetCircuitState records a breaker transition; state is the numeric circuit state.
func (p *PrometheusRecorder) SetCircuitState(provider string, state int) {
	p.circuitState.WithLabelValues(provider).Set(float64(state))
}

// ObserveModelRequest records one model endpoint call.
func (p *PrometheusRecorder) ObserveModelRequest(
	model string,
	inputTokens, outputTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := OutcomeSuccess
	if !success {
		status = OutcomeError
	}
	p.modelRequests.WithLabelValues(model, status, errorType).Inc()
	if success {
		p.modelTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
		p.modelTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
	p.modelRequestDur.WithLabelValues(model).Observe(duration.Seconds())
}

// Handler serves the registry for scraping.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// WriteText dumps every collected family in the Prometheus text format.
func (p *PrometheusRecorder) WriteText(w io.Writer) error {
	families, err := p.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
