package odds

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/config"
	"boxonomics/pkg/tools"
)

var board = []Event{
	{
		ID:       "evt-1",
		HomeTeam: "Tyson Fury",
		AwayTeam: "Oleksandr Usyk",
		Bookmakers: []Bookmaker{
			{Key: "draftkings", Title: "DraftKings", Markets: []Market{{Key: "h2h", Outcomes: []Outcome{
				{Name: "Tyson Fury", Price: 2.5},
				{Name: "Oleksandr Usyk", Price: 1.6},
			}}}},
			{Key: "fanduel", Title: "FanDuel", Markets: []Market{{Key: "h2h", Outcomes: []Outcome{
				{Name: "Tyson Fury", Price: 2.3},
				{Name: "Oleksandr Usyk", Price: 1.7},
			}}}},
		},
	},
	{ID: "evt-2", HomeTeam: "Canelo Alvarez", AwayTeam: "Dmitry Bivol"},
}

func fakeSecrets(values map[string]string) SecretFunc {
	return func(name string) (string, error) {
		if v, ok := values[name]; ok {
			return v, nil
		}
		return "", errors.New("not set")
	}
}

func newServer(t *testing.T) (*Provider, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, oddsPath, r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apiKey"))
		assert.Equal(t, "decimal", r.URL.Query().Get("oddsFormat"))
		assert.Equal(t, "h2h", r.URL.Query().Get("markets"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(board)
	}))
	t.Cleanup(srv.Close)
	p := New(WithBaseURL(srv.URL), WithSecrets(fakeSecrets(map[string]string{config.EnvOddsAPIKey: "test-key"})))
	return p, hits
}

func TestListToolsWithoutKey(t *testing.T) {
	p := New(WithSecrets(fakeSecrets(nil)))
	defs := p.ListTools()
	require.Len(t, defs, 5)
	assert.Equal(t, ToolGetFightOdds, defs[0].Name)
	assert.Equal(t, []string{"fighter1", "fighter2"}, defs[0].InputSchema.Required)

	_, err := p.Invoke(context.Background(), ToolGetFightOdds, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.Error(t, err)
	assert.True(t, tools.IsConfigurationError(err))
	assert.ErrorIs(t, err, tools.ErrMissingSecret)
}

func TestGetFightOddsMatchesEitherFighter(t *testing.T) {
	p, hits := newServer(t)

	out, err := p.Invoke(context.Background(), ToolGetFightOdds, map[string]any{"fighter1": "usyk", "fighter2": "Nobody"})
	require.NoError(t, err)
	ev, ok := out.(*Event)
	require.True(t, ok)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFightNotFound(t *testing.T) {
	p, _ := newServer(t)
	_, err := p.Invoke(context.Background(), ToolGetFightOdds, map[string]any{"fighter1": "Joshua", "fighter2": "Parker"})
	require.ErrorIs(t, err, ErrFightNotFound)
	assert.Contains(t, err.Error(), "available fights: 2")
}

func TestOddsMovementDefaultsTimeframe(t *testing.T) {
	p, _ := newServer(t)
	out, err := p.Invoke(context.Background(), ToolGetOddsMovement, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "7d", m["timeframe"])
	assert.Equal(t, "Historical odds tracking requires premium API access", m["note"])
}

func TestBettingTrends(t *testing.T) {
	p, _ := newServer(t)
	out, err := p.Invoke(context.Background(), ToolGetBettingTrends, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "Fury vs Usyk", m["fight"])
	assert.Equal(t, "Betting percentages require premium data feed", m["note"])
}

func TestCalculateBettingValue(t *testing.T) {
	p, _ := newServer(t)
	out, err := p.Invoke(context.Background(), ToolCalculateBettingValue, map[string]any{"fighter_name": "Fury", "opponent": "Usyk"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "DraftKings", m["bookmaker"])
	priced := m["odds_data"].([]PricedOutcome)
	require.Len(t, priced, 2)
	assert.InDelta(t, 0.4, priced[0].ImpliedProbability, 1e-9)
	assert.InDelta(t, 0.625, priced[1].ImpliedProbability, 1e-9)
	assert.InDelta(t, 0.025, m["bookmaker_margin"].(float64), 1e-9)
}

func TestCalculateBettingValueRequiresArgs(t *testing.T) {
	p, hits := newServer(t)
	_, err := p.Invoke(context.Background(), ToolCalculateBettingValue, map[string]any{"fighter_name": "Fury"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opponent")
	assert.Equal(t, int32(0), hits.Load())
}

func TestPredictFightOutcome(t *testing.T) {
	p, _ := newServer(t)
	out, err := p.Invoke(context.Background(), ToolPredictFightOutcome, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, "Oleksandr Usyk", m["favorite"])
	assert.Equal(t, 2, m["bookmakers_sampled"])
	avg := m["average_odds"].(map[string]float64)
	assert.InDelta(t, 2.4, avg["Tyson Fury"], 1e-9)
	assert.InDelta(t, 1.65, avg["Oleksandr Usyk"], 1e-9)
}

func TestPredictWithoutBookmakers(t *testing.T) {
	p, _ := newServer(t)
	out, err := p.Invoke(context.Background(), ToolPredictFightOutcome, map[string]any{"fighter1": "Canelo", "fighter2": "Bivol"})
	require.NoError(t, err)
	assert.Equal(t, "Insufficient data for prediction", out.(map[string]any)["error"])
}

func TestUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	p := New(WithBaseURL(srv.URL), WithSecrets(fakeSecrets(map[string]string{config.EnvOddsAPIKey: "k"})))

	_, err := p.Invoke(context.Background(), ToolGetFightOdds, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.Error(t, err)
	assert.False(t, tools.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "failed to fetch odds")
}

func TestUnknownTool(t *testing.T) {
	p, _ := newServer(t)
	_, err := p.Invoke(context.Background(), "get_weather", nil)
	require.Error(t, err)
}
