package metrics

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingObserver struct {
	calls   []string
	queries int
	errors  int
	mu      sync.Mutex
}

func (o *recordingObserver) ObserveQuery() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries++
}

func (o *recordingObserver) ObserveToolCall(tool, provider, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, tool+"/"+provider+"/"+outcome)
}

func (o *recordingObserver) ObserveError() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors++
}

func TestMonitorAggregatesToolCalls(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMonitor(clock.Now)

	m.LogQuery("Who wins Canelo vs Crawford?")
	m.LogQuery("Show me the odds")
	m.LogToolCall("search_fighters", 120)
	m.LogToolCall("search_fighters", 80)
	m.LogToolCall("get_odds", 300)
	clock.Advance(2 * time.Minute)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.TotalQueries)
	assert.Equal(t, 3, stats.TotalToolCalls)
	assert.InDelta(t, 120.0, stats.RuntimeSeconds, 0.001)
	assert.InDelta(t, 1.0, stats.QueriesPerMinute, 0.001)

	search := stats.PerToolBreakdown["search_fighters"]
	assert.Equal(t, 2, search.Count)
	assert.InDelta(t, 200.0, search.TotalMs, 0.001)
	assert.InDelta(t, 100.0, search.AvgMs, 0.001)
	assert.Equal(t, 1, stats.PerToolBreakdown["get_odds"].Count)
}

func TestMonitorZeroRuntime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewMonitor(clock.Now)
	m.LogQuery("q")

	stats := m.GetStats()
	assert.Zero(t, stats.QueriesPerMinute)
	assert.Empty(t, stats.PerToolBreakdown)
}

func TestMonitorKeepsRecentErrors(t *testing.T) {
	m := NewMonitor(nil)
	for i := 0; i < 60; i++ {
		m.LogError(fmt.Sprintf("failure %d", i), map[string]any{"i": i})
	}

	stats := m.GetStats()
	assert.Equal(t, 60, stats.ErrorCount)
	require.Len(t, stats.Errors, maxErrors)
	assert.Equal(t, "failure 10", stats.Errors[0].Message)
	assert.Equal(t, "failure 59", stats.Errors[maxErrors-1].Message)
}

func TestMonitorReset(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	m := NewMonitor(clock.Now)
	m.LogQuery("q")
	m.LogToolCall("get_news", 10)
	m.LogError("boom", nil)
	clock.Advance(time.Minute)

	m.Reset()

	stats := m.GetStats()
	assert.Zero(t, stats.TotalQueries)
	assert.Zero(t, stats.TotalToolCalls)
	assert.Zero(t, stats.ErrorCount)
	assert.Empty(t, stats.Errors)
	assert.Zero(t, stats.RuntimeSeconds)
}

func TestMonitorForwardsToObserver(t *testing.T) {
	obs := &recordingObserver{}
	m := NewMonitor(nil)
	m.SetObserver(obs)

	m.LogQuery("q")
	m.LogToolOutcome("get_fighter_mentions", "social", OutcomeFallback, 5)
	m.LogToolCall("search_fighters", 1)
	m.LogError("x", nil)

	assert.Equal(t, 1, obs.queries)
	assert.Equal(t, 1, obs.errors)
	assert.Equal(t, []string{
		"get_fighter_mentions/social/fallback",
		"search_fighters//success",
	}, obs.calls)
}

func TestMonitorSummaryOrdersByCount(t *testing.T) {
	m := NewMonitor(nil)
	m.LogQuery("q")
	m.LogToolCall("get_odds", 50)
	m.LogToolCall("search_fighters", 10)
	m.LogToolCall("search_fighters", 30)
	m.LogError("boom", nil)

	summary := m.Summary()
	assert.Contains(t, summary, "📊 PERFORMANCE SUMMARY")
	assert.Contains(t, summary, "Total Queries: 1")
	assert.Contains(t, summary, "Total Tool Calls: 3")
	assert.Contains(t, summary, "search_fighters: 2 calls, 20ms avg")
	assert.Contains(t, summary, "❌ Errors: 1")
	assert.Less(t, strings.Index(summary, "search_fighters"), strings.Index(summary, "get_odds"))
}

func TestMonitorConcurrentUse(t *testing.T) {
	m := NewMonitor(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.LogQuery("q")
				m.LogToolCall("search_fighters", 1)
			}
		}()
	}
	wg.Wait()

	stats := m.GetStats()
	assert.Equal(t, 800, stats.TotalQueries)
	assert.Equal(t, 800, stats.PerToolBreakdown["search_fighters"].Count)
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}
