package tools

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name     string
	category Category
	tools    []string
	calls    []string
	err      error
}

func (s *stubProvider) Name() string       { return s.name }
func (s *stubProvider) Category() Category { return s.category }

func (s *stubProvider) ListTools() []ToolDefinition {
	defs := make([]ToolDefinition, len(s.tools))
	for i, name := range s.tools {
		defs[i] = ToolDefinition{
			Name:        name,
			Description: "stub " + name,
			InputSchema: NewSchema(map[string]Property{"name": StringProp("who")}, "name"),
		}
	}
	return defs
}

func (s *stubProvider) Invoke(_ context.Context, name string, args map[string]any) (any, error) {
	s.calls = append(s.calls, name)
	if s.err != nil {
		return nil, s.err
	}
	return map[string]any{"tool": name, "args": args}, nil
}

func names(defs []ToolDefinition) []string {
	out := make([]string, len(defs))
	for i := range defs {
		out[i] = defs[i].Name
	}
	return out
}

func TestBuildDescribeOrder(t *testing.T) {
	a := &stubProvider{name: "analytics", category: CategoryAnalytics, tools: []string{"get_fighter_stats", "compare_fighters"}}
	b := &stubProvider{name: "odds", category: CategoryOdds, tools: []string{"get_fight_odds"}}
	c := &stubProvider{name: "news", category: CategoryNews, tools: []string{"get_fight_news", "compare_fighter_hype"}}

	reg, err := Build([]Provider{a, b, c})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"get_fighter_stats", "compare_fighters",
		"get_fight_odds",
		"get_fight_news", "compare_fighter_hype",
	}, names(reg.Describe()))
	assert.Equal(t, 5, reg.Len())
	assert.Equal(t, []string{"analytics", "odds", "news"}, reg.Providers())

	for _, def := range reg.Describe() {
		owner, ok := reg.ProviderFor(def.Name)
		require.True(t, ok)
		assert.Equal(t, owner, def.Provider, "descriptor carries explicit provider tag")
	}
	assert.Equal(t, CategoryOdds, reg.Describe()[2].Category)
}

func TestBuildDuplicateToolName(t *testing.T) {
	a := &stubProvider{name: "analytics", tools: []string{"get_fighter_stats", "shared"}}
	b := &stubProvider{name: "odds", tools: []string{"shared"}}

	reg, err := Build([]Provider{a, b})
	assert.Nil(t, reg)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "shared")
}

func TestBuildRejectsBadInput(t *testing.T) {
	tests := []struct {
		name      string
		providers []Provider
	}{
		{"empty", nil},
		{"nil provider", []Provider{nil}},
		{"unnamed provider", []Provider{&stubProvider{tools: []string{"x"}}}},
		{"duplicate provider", []Provider{&stubProvider{name: "a", tools: []string{"x"}}, &stubProvider{name: "a", tools: []string{"y"}}}},
		{"unnamed tool", []Provider{&stubProvider{name: "a", tools: []string{""}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.providers)
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}

func TestDescribeReturnsCopy(t *testing.T) {
	reg, err := Build([]Provider{&stubProvider{name: "a", tools: []string{"x", "y"}}})
	require.NoError(t, err)

	defs := reg.Describe()
	defs[0].Name = "mutated"
	assert.Equal(t, "x", reg.Describe()[0].Name)
}

func TestDispatch(t *testing.T) {
	a := &stubProvider{name: "analytics", category: CategoryAnalytics, tools: []string{"get_fighter_stats"}}
	reg, err := Build([]Provider{a})
	require.NoError(t, err)

	out, err := reg.Dispatch(context.Background(), "get_fighter_stats", map[string]any{"name": "Tyson Fury"})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_fighter_stats"}, a.calls)
	assert.Equal(t, "Tyson Fury", out.(map[string]any)["args"].(map[string]any)["name"])
}

func TestDispatchUnknownTool(t *testing.T) {
	reg, err := Build([]Provider{&stubProvider{name: "a", tools: []string{"x"}}})
	require.NoError(t, err)

	_, err = reg.Dispatch(context.Background(), "nonexistent_tool", nil)
	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nonexistent_tool", unknown.Name)
	assert.Equal(t, "Tool nonexistent_tool not found", err.Error())
}

func TestDispatchWrapsProviderErrors(t *testing.T) {
	boom := errors.New("connection refused")
	reg, err := Build([]Provider{&stubProvider{name: "odds", tools: []string{"get_fight_odds"}, err: boom}})
	require.NoError(t, err)

	_, err = reg.Dispatch(context.Background(), "get_fight_odds", nil)
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "odds", provErr.Provider)
	assert.ErrorIs(t, err, boom)
}

func TestDispatchKeepsConfigurationErrors(t *testing.T) {
	reg, err := Build([]Provider{&stubProvider{
		name: "odds", tools: []string{"get_fight_odds"},
		err: NewMissingSecretError("odds", "ODDS_API_KEY"),
	}})
	require.NoError(t, err)

	_, err = reg.Dispatch(context.Background(), "get_fight_odds", nil)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(tag string) Middleware {
		return func(next Invoker) Invoker {
			return func(ctx context.Context, call Call) (any, error) {
				mu.Lock()
				order = append(order, tag+":"+call.Provider)
				mu.Unlock()
				return next(ctx, call)
			}
		}
	}

	reg, err := Build(
		[]Provider{&stubProvider{name: "news", category: CategoryNews, tools: []string{"get_fight_news"}}},
		WithMiddleware(record("outer"), record("inner")),
	)
	require.NoError(t, err)

	_, err = reg.Dispatch(context.Background(), "get_fight_news", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer:news", "inner:news"}, order)
}

func TestGroupedUsesProviderTags(t *testing.T) {
	reg, err := Build([]Provider{
		&stubProvider{name: "social", tools: []string{"get_fighter_mentions"}},
		// a name that looks like it belongs elsewhere stays with its declaring provider
		&stubProvider{name: "news", tools: []string{"reddit_like_news_tool"}},
	})
	require.NoError(t, err)

	grouped := reg.Grouped()
	assert.Equal(t, []string{"reddit_like_news_tool"}, names(grouped["news"]))
	assert.Equal(t, []string{"get_fighter_mentions"}, names(grouped["social"]))
	assert.Contains(t, reg.GenerateToolDocumentation(), "### news")
}
