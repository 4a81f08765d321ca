package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/agent/middleware/resilience/circuit"
	"boxonomics/pkg/tools"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "wrapped canceled", err: fmt.Errorf("call failed: %w", context.Canceled), want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "circuit open", err: &circuit.CircuitOpenError{Provider: "odds"}, want: false},
		{name: "missing secret", err: tools.NewMissingSecretError("odds", "ODDS_API_KEY"), want: false},
		{name: "unknown tool", err: &tools.UnknownToolError{Name: "nope"}, want: false},
		{name: "server error", err: errors.New("503 service unavailable"), want: true},
		{name: "connection reset", err: errors.New("connection reset by peer"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   10,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, time.Second, p.CalculateDelay(2))
	assert.Equal(t, 2*time.Second, p.CalculateDelay(3))
	assert.Equal(t, 4*time.Second, p.CalculateDelay(4))
	assert.Equal(t, 5*time.Second, p.CalculateDelay(10), "capped at max delay")
}

func TestCalculateDelayWithJitter(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	for i := 0; i < 20; i++ {
		delay := p.CalculateDelay(2)
		assert.GreaterOrEqual(t, delay, 900*time.Millisecond)
		assert.LessOrEqual(t, delay, 1100*time.Millisecond)
	}
}

// recordingPolicy returns a policy whose sleeps are captured instead of performed.
func recordingPolicy(cfg Config) (*Policy, *[]time.Duration) {
	var slept []time.Duration
	p := NewPolicy(cfg, nil)
	p.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestMiddlewareRecoversOnSecondAttempt(t *testing.T) {
	p, slept := recordingPolicy(DefaultConfig)

	calls := 0
	base := func(_ context.Context, _ tools.Call) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection refused")
		}
		return map[string]any{"odds": 1.5}, nil
	}

	result, err := tools.Chain(base, Middleware(p))(context.Background(), tools.Call{Tool: "get_fight_odds"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"odds": 1.5}, result)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, *slept)
}

func TestMiddlewareSucceedsOnLastAttemptWithCappedBackoff(t *testing.T) {
	p, slept := recordingPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      3 * time.Second,
		BackoffFactor: 2.0,
	})

	calls := 0
	base := func(_ context.Context, _ tools.Call) (any, error) {
		calls++
		if calls < 5 {
			return nil, errors.New("upstream 503")
		}
		return "Usyk 1.60", nil
	}

	result, err := tools.Chain(base, Middleware(p))(context.Background(), tools.Call{Tool: "get_fight_odds"})
	require.NoError(t, err)
	assert.Equal(t, "Usyk 1.60", result)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, *slept)

	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	assert.Equal(t, 9*time.Second, total)
}

func TestMiddlewareExhaustsAttempts(t *testing.T) {
	p, slept := recordingPolicy(DefaultConfig)

	boom := errors.New("502 bad gateway")
	calls := 0
	base := func(_ context.Context, _ tools.Call) (any, error) {
		calls++
		return nil, boom
	}

	_, err := tools.Chain(base, Middleware(p))(context.Background(), tools.Call{Tool: "get_fight_news"})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestMiddlewareDoesNotRetryPermanentErrors(t *testing.T) {
	p, slept := recordingPolicy(DefaultConfig)

	calls := 0
	base := func(_ context.Context, _ tools.Call) (any, error) {
		calls++
		return nil, &circuit.CircuitOpenError{Provider: "social"}
	}

	_, err := tools.Chain(base, Middleware(p))(context.Background(), tools.Call{Tool: "get_fighter_mentions"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestMiddlewareStopsWhenContextCancelled(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	base := func(_ context.Context, _ tools.Call) (any, error) {
		calls++
		cancel()
		return nil, errors.New("timeout talking to upstream")
	}

	_, err := tools.Chain(base, Middleware(p))(ctx, tools.Call{Tool: "get_fighter_stats"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
