package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/persistence"
	"boxonomics/pkg/tools"
)

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := persistence.Open(ctx, persistence.DialectSQLite, persistence.MemoryDSN(name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.InitializeAnalyticsSchema(ctx, db, persistence.DialectSQLite))
	_, err = persistence.Seed(ctx, db, persistence.DialectSQLite, persistence.SampleFixture(), fixedNow)
	require.NoError(t, err)

	return New(db, persistence.DialectSQLite, WithClock(func() time.Time { return fixedNow }))
}

func invoke(t *testing.T, p *Provider, tool string, args map[string]any) any {
	t.Helper()
	out, err := p.Invoke(context.Background(), tool, args)
	require.NoError(t, err)
	return out
}

func TestListToolsWithoutDatabase(t *testing.T) {
	p := New(nil, persistence.DialectSQLite)
	defs := p.ListTools()
	require.Len(t, defs, 8)

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
		assert.Equal(t, "object", d.InputSchema.Type)
		assert.NotEmpty(t, d.Description)
	}
	assert.Equal(t, []string{
		ToolGetFighterStats, ToolCompareFighters, ToolSearchFighters, ToolFighterCareerTimeline,
		ToolUpcomingFights, ToolAnalyzeCareerTrajectory, ToolCompareCommonOpponents, ToolAnalyzeTitlePerformance,
	}, names)

	_, err := p.Invoke(context.Background(), ToolGetFighterStats, map[string]any{"name": "Fury"})
	var cfgErr *tools.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGetFighterStats(t *testing.T) {
	p := newProvider(t)
	stats, ok := invoke(t, p, ToolGetFighterStats, map[string]any{"name": "fury"}).(*FighterStats)
	require.True(t, ok)

	assert.Equal(t, "Tyson Fury", stats.Name)
	assert.Equal(t, "34-2-1", stats.Record)
	assert.Equal(t, 67.6, stats.RecordDetails.KOPercentage)
	require.NotNil(t, stats.PhysicalStats.ReachCm)
	assert.Equal(t, 216, *stats.PhysicalStats.ReachCm)
	require.NotNil(t, stats.Age)
	assert.Equal(t, 37, *stats.Age)
	require.NotNil(t, stats.CareerLengthYears)
	assert.Equal(t, 17, *stats.CareerLengthYears)
	assert.Equal(t, 11, stats.TotalFights, "includes the scheduled rematch")
	assert.True(t, stats.Active)

	require.Len(t, stats.Titles, 2)
	assert.Equal(t, "WBC Heavyweight", stats.Titles[0].TitleName, "newest title first")

	require.Len(t, stats.NotableWins, 5)
	assert.Equal(t, "Derek Chisora", stats.NotableWins[0].Opponent)
	assert.Equal(t, "2022-12-03", stats.NotableWins[0].Date)
	for _, w := range stats.NotableWins {
		assert.NotEqual(t, "Dillian Whyte", w.Opponent, "30 wins is not notable")
	}
}

func TestGetFighterStatsPrefersExactMatch(t *testing.T) {
	p := newProvider(t)
	stats, ok := invoke(t, p, ToolGetFighterStats, map[string]any{"name": "Canelo Alvarez"}).(*FighterStats)
	require.True(t, ok)
	assert.Equal(t, "Canelo Alvarez", stats.Name)
}

func TestGetFighterStatsNotFound(t *testing.T) {
	p := newProvider(t)
	out, ok := invoke(t, p, ToolGetFighterStats, map[string]any{"name": "Rocky Balboa"}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Fighter 'Rocky Balboa' not found", out["error"])
	assert.NotEmpty(t, out["suggestion"])
}

func TestGetFighterStatsMissingName(t *testing.T) {
	p := newProvider(t)
	_, err := p.Invoke(context.Background(), ToolGetFighterStats, map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}

func TestCompareFighters(t *testing.T) {
	p := newProvider(t)
	cmp, ok := invoke(t, p, ToolCompareFighters, map[string]any{
		"fighter1": "Tyson Fury", "fighter2": "Oleksandr Usyk",
	}).(*Comparison)
	require.True(t, ok)

	assert.Equal(t, "34-2-1", cmp.Fighter1Record)
	assert.Equal(t, "23-0-0", cmp.Fighter2Record)
	assert.Len(t, cmp.Fighter1Advantages, 2, "experience and reach")
	assert.Len(t, cmp.Fighter2Advantages, 1, "fewer losses")
	assert.Equal(t, "Tyson Fury", cmp.StatisticalFavorite)
	assert.InDelta(t, 0.8, cmp.Confidence, 1e-9)
	assert.Equal(t, "Based on 3 key factors analyzed", cmp.Analysis)
}

func TestCompareStatsTooClose(t *testing.T) {
	reach := 200
	a := &FighterStats{Name: "A", Record: "10-0-0", RecordDetails: RecordDetails{Wins: 10}, PhysicalStats: PhysicalStats{ReachCm: &reach}}
	b := &FighterStats{Name: "B", Record: "10-0-0", RecordDetails: RecordDetails{Wins: 10}, PhysicalStats: PhysicalStats{ReachCm: &reach}}
	cmp := compareStats(a, b)
	assert.Equal(t, TooCloseToCall, cmp.StatisticalFavorite)
	assert.Equal(t, 0.5, cmp.Confidence)
	assert.Empty(t, cmp.Fighter1Advantages)
}

func TestCompareStatsConfidenceCapped(t *testing.T) {
	reach1, reach2 := 210, 190
	a := &FighterStats{
		Name:          "A",
		RecordDetails: RecordDetails{Wins: 50, KOPercentage: 90},
		PhysicalStats: PhysicalStats{ReachCm: &reach1},
		Titles:        []TitleReign{{TitleName: "WBC"}},
	}
	b := &FighterStats{
		Name:          "B",
		RecordDetails: RecordDetails{Wins: 10, Losses: 5, KOPercentage: 40},
		PhysicalStats: PhysicalStats{ReachCm: &reach2},
	}
	cmp := compareStats(a, b)
	assert.Len(t, cmp.Fighter1Advantages, 5)
	assert.Equal(t, 0.95, cmp.Confidence)
}

func TestCompareFightersUnknown(t *testing.T) {
	p := newProvider(t)
	out, ok := invoke(t, p, ToolCompareFighters, map[string]any{
		"fighter1": "Tyson Fury", "fighter2": "Nobody",
	}).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Fighter 'Nobody' not found", out["error"])
}

func TestSearchFighters(t *testing.T) {
	p := newProvider(t)

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{
			name: "active heavyweights by wins",
			args: map[string]any{"weight_class": "heavyweight", "active_only": true},
			want: []string{"Deontay Wilder", "Derek Chisora", "Tyson Fury", "Dillian Whyte", "Anthony Joshua", "Oleksandr Usyk", "Daniel Dubois"},
		},
		{
			name: "name fragment",
			args: map[string]any{"query": "kl"},
			want: []string{"Wladimir Klitschko"},
		},
		{
			name: "no filters caps at ten",
			args: map[string]any{},
			want: []string{
				"Wladimir Klitschko", "Canelo Alvarez", "Deontay Wilder", "Gennady Golovkin", "Terence Crawford",
				"Derek Chisora", "Tyson Fury", "Dillian Whyte", "Anthony Joshua", "Bermane Stiverne",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := invoke(t, p, ToolSearchFighters, tt.args).([]FighterSummary)
			require.True(t, ok)
			names := make([]string, len(got))
			for i, f := range got {
				names[i] = f.Name
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFighterCareerTimeline(t *testing.T) {
	p := newProvider(t)
	tl, ok := invoke(t, p, ToolFighterCareerTimeline, map[string]any{"name": "Tyson Fury"}).(*Timeline)
	require.True(t, ok)

	assert.Equal(t, 10, tl.TotalFights)
	assert.Equal(t, 2, tl.ChampionshipReigns)
	require.NotNil(t, tl.CareerSpan)
	assert.Equal(t, "2024-12-21", tl.CareerSpan.LastFight)
	assert.InDelta(t, 16.1, tl.CareerSpan.Years, 0.05)

	require.Len(t, tl.Milestones, 7)
	assert.Equal(t, "Professional Debut", tl.Milestones[0].Event)
	assert.Equal(t, "Won WBA (Super) Heavyweight", tl.Milestones[1].Event)
	assert.Equal(t, "Defeated Wladimir Klitschko for title", tl.Milestones[2].Event)
	assert.Equal(t, "TKO victory in round 10", tl.Milestones[6].Significance)

	require.NotEmpty(t, tl.YearByYear)
	assert.Equal(t, YearRecord{Year: "2011", Wins: 1}, tl.YearByYear[0])
	last := tl.YearByYear[len(tl.YearByYear)-1]
	assert.Equal(t, YearRecord{Year: "2024", Losses: 2}, last)
}

func TestUpcomingFights(t *testing.T) {
	p := newProvider(t)

	tests := []struct {
		args map[string]any
		name string
		want []string
	}{
		{name: "default 30 days", args: map[string]any{}, want: []string{"Daniel Dubois"}},
		{name: "three months", args: map[string]any{"date_range": "3m"}, want: []string{"Daniel Dubois", "Dmitry Bivol"}},
		{name: "unknown range uses 30 days", args: map[string]any{"date_range": "2w"}, want: []string{"Daniel Dubois"}},
		{
			name: "heavyweight over six months",
			args: map[string]any{"date_range": "6m", "weight_class": "HEAVYWEIGHT"},
			want: []string{"Daniel Dubois", "Tyson Fury"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := invoke(t, p, ToolUpcomingFights, tt.args).([]UpcomingFight)
			require.True(t, ok)
			names := make([]string, len(got))
			for i, f := range got {
				names[i] = f.Fighter1
				assert.Equal(t, persistence.StatusNotStarted, f.Status)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestUpcomingFightDetails(t *testing.T) {
	p := newProvider(t)
	got, ok := invoke(t, p, ToolUpcomingFights, map[string]any{"date_range": "60d"}).([]UpcomingFight)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-03-15", got[0].Date)
	assert.Equal(t, "Terence Crawford", got[1].Fighter2)
	assert.True(t, got[1].TitleFight)
	assert.Equal(t, "T-Mobile Arena, Las Vegas", got[1].Location)
}

func TestRangeDays(t *testing.T) {
	for in, want := range map[string]int{"7d": 7, "30d": 30, "60d": 60, "90d": 90, "3m": 90, "6m": 180, "1y": 30, "": 30} {
		assert.Equal(t, want, rangeDays(in), in)
	}
}
