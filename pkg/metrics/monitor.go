// Package metrics tracks query, tool-call and error statistics for the assistant and mirrors them to Prometheus.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"boxonomics/pkg/logx"
)

// maxErrors bounds the error history kept by a Monitor.
const maxErrors = 50

// Tool call outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeFallback    = "fallback"
	OutcomeUnknownTool = "unknown_tool"
)

// Observer receives every event a Monitor records. PrometheusRecorder implements it.
type Observer interface {
	ObserveQuery()
	ObserveToolCall(tool, provider, outcome string, duration time.Duration)
	ObserveError()
}

// ToolStats aggregates calls to one tool.
type ToolStats struct {
	Count   int     `json:"count"`
	AvgMs   float64 `json:"avg_ms"`
	TotalMs float64 `json:"total_ms"`
}

// ErrorRecord is one logged error.
type ErrorRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Context   map[string]any `json:"context,omitempty"`
	Message   string         `json:"error"`
}

// Stats is a point-in-time snapshot of a Monitor.
type Stats struct {
	PerToolBreakdown map[string]ToolStats `json:"tool_breakdown"`
	Errors           []ErrorRecord        `json:"recent_errors"`
	RuntimeSeconds   float64              `json:"runtime_seconds"`
	QueriesPerMinute float64              `json:"queries_per_minute"`
	TotalQueries     int                  `json:"total_queries"`
	TotalToolCalls   int                  `json:"total_tool_calls"`
	ErrorCount       int                  `json:"errors"`
}

type toolTally struct {
	count   int
	totalMs float64
}

// Monitor records queries, tool calls and errors. It is safe for concurrent use.
type Monitor struct {
	now      func() time.Time
	start    time.Time
	tools    map[string]*toolTally
	observer Observer
	logger   *logx.Logger
	errors   []ErrorRecord
	queries  int
	errCount int
	mu       sync.Mutex
}

// NewMonitor creates an isolated monitor. A nil clock means time.Now.
func NewMonitor(clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{
		now:    clock,
		start:  clock(),
		tools:  make(map[string]*toolTally),
		logger: logx.NewLogger("monitor"),
	}
}

var (
	defaultMonitor     *Monitor //nolint:gochecknoglobals
	defaultMonitorOnce sync.Once
)

// Default returns the process-wide monitor used by the CLI and HTTP server.
func Default() *Monitor {
	defaultMonitorOnce.Do(func() {
		defaultMonitor = NewMonitor(nil)
	})
	return defaultMonitor
}

// SetObserver mirrors subsequent events to o. Pass nil to detach.
func (m *Monitor) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = o
}

// LogQuery records a user query.
func (m *Monitor) LogQuery(text string) {
	m.mu.Lock()
	m.queries++
	n, obs := m.queries, m.observer
	m.mu.Unlock()

	m.logger.Info("📝 Query #%d: %s", n, truncate(text, 50))
	if obs != nil {
		obs.ObserveQuery()
	}
}

// LogToolCall records a successful tool call of durationMs milliseconds.
func (m *Monitor) LogToolCall(name string, durationMs float64) {
	m.LogToolOutcome(name, "", OutcomeSuccess, durationMs)
}

// LogToolOutcome records a tool call with its owning provider and outcome.
func (m *Monitor) LogToolOutcome(name, provider, outcome string, durationMs float64) {
	m.mu.Lock()
	tally, ok := m.tools[name]
	if !ok {
		tally = &toolTally{}
		m.tools[name] = tally
	}
	tally.count++
	tally.totalMs += durationMs
	obs := m.observer
	m.mu.Unlock()

	m.logger.Info("⚙️  Tool: %s (%.0fms, %s)", name, durationMs, outcome)
	if obs != nil {
		obs.ObserveToolCall(name, provider, outcome, time.Duration(durationMs*float64(time.Millisecond)))
	}
}

// LogError records an error with context. Only the most recent errors are kept, the count is total.
func (m *Monitor) LogError(message string, context map[string]any) {
	m.mu.Lock()
	m.errCount++
	m.errors = append(m.errors, ErrorRecord{Timestamp: m.now(), Message: message, Context: context})
	if len(m.errors) > maxErrors {
		m.errors = m.errors[len(m.errors)-maxErrors:]
	}
	obs := m.observer
	m.mu.Unlock()

	m.logger.Error("❌ Error: %s", message)
	if obs != nil {
		obs.ObserveError()
	}
}

// GetStats returns a snapshot of the current statistics.
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	runtime := m.now().Sub(m.start).Seconds()
	stats := Stats{
		RuntimeSeconds:   runtime,
		TotalQueries:     m.queries,
		PerToolBreakdown: make(map[string]ToolStats, len(m.tools)),
		ErrorCount:       m.errCount,
		Errors:           append([]ErrorRecord(nil), m.errors...),
	}
	for name, t := range m.tools {
		stats.TotalToolCalls += t.count
		avg := 0.0
		if t.count > 0 {
			avg = t.totalMs / float64(t.count)
		}
		stats.PerToolBreakdown[name] = ToolStats{Count: t.count, AvgMs: avg, TotalMs: t.totalMs}
	}
	if runtime > 0 {
		stats.QueriesPerMinute = float64(m.queries) / runtime * 60
	}
	return stats
}

// Reset clears all statistics and restarts the runtime clock. The observer stays attached.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = m.now()
	m.tools = make(map[string]*toolTally)
	m.errors = nil
	m.queries = 0
	m.errCount = 0
}

// Summary renders the statistics as a human-readable report.
func (m *Monitor) Summary() string {
	stats := m.GetStats()
	rule := strings.Repeat("=", 70)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n📊 PERFORMANCE SUMMARY\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Runtime: %.1fs\n", stats.RuntimeSeconds)
	fmt.Fprintf(&b, "Total Queries: %d\n", stats.TotalQueries)
	fmt.Fprintf(&b, "Total Tool Calls: %d\n", stats.TotalToolCalls)
	fmt.Fprintf(&b, "Queries/Min: %.1f\n", stats.QueriesPerMinute)

	if len(stats.PerToolBreakdown) > 0 {
		names := make([]string, 0, len(stats.PerToolBreakdown))
		for name := range stats.PerToolBreakdown {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			a, c := stats.PerToolBreakdown[names[i]], stats.PerToolBreakdown[names[j]]
			if a.Count != c.Count {
				return a.Count > c.Count
			}
			return names[i] < names[j]
		})
		b.WriteString("\n🔧 Tool Usage:\n")
		for _, name := range names {
			t := stats.PerToolBreakdown[name]
			fmt.Fprintf(&b, "   %s: %d calls, %.0fms avg\n", name, t.Count, t.AvgMs)
		}
	}
	if stats.ErrorCount > 0 {
		fmt.Fprintf(&b, "\n❌ Errors: %d\n", stats.ErrorCount)
	}
	b.WriteString(rule)
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
