package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/tools"
)

func TestConfigFor(t *testing.T) {
	cfg := Config{
		Default:     10 * time.Second,
		PerProvider: map[string]time.Duration{"social": 20 * time.Second},
		PerTool:     map[string]time.Duration{"get_community_sentiment": 45 * time.Second},
	}

	assert.Equal(t, 10*time.Second, cfg.For(tools.Call{Tool: "get_fight_odds", Provider: "odds"}))
	assert.Equal(t, 20*time.Second, cfg.For(tools.Call{Tool: "get_fighter_mentions", Provider: "social"}))
	assert.Equal(t, 45*time.Second, cfg.For(tools.Call{Tool: "get_community_sentiment", Provider: "social"}))
	assert.Equal(t, DefaultTimeout, Config{}.For(tools.Call{Tool: "x"}))
}

func TestMiddlewarePassesFastCalls(t *testing.T) {
	inv := tools.Chain(func(_ context.Context, _ tools.Call) (any, error) {
		return "ok", nil
	}, Middleware(Config{Default: time.Second}))

	result, err := inv(context.Background(), tools.Call{Tool: "search_fighters", Provider: "analytics"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestMiddlewareAbandonsStuckProvider(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	inv := tools.Chain(func(_ context.Context, _ tools.Call) (any, error) {
		<-release // ignores its context
		return "late", nil
	}, Middleware(Config{Default: 20 * time.Millisecond}))

	start := time.Now()
	_, err := inv(context.Background(), tools.Call{Tool: "get_fight_news", Provider: "news"})
	require.Error(t, err)

	var timeoutErr *Error
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "news", timeoutErr.Provider)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestMiddlewarePropagatesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inv := tools.Chain(func(ctx context.Context, _ tools.Call) (any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}, Middleware(Config{Default: time.Minute}))

	_, err := inv(ctx, tools.Call{Tool: "get_fight_odds", Provider: "odds"})
	assert.ErrorIs(t, err, context.Canceled)
}
