// Package analytics serves fighter statistics and derived analyses from the SQL analytics store.
package analytics

import (
	"context"
	"database/sql"
	"time"

	"boxonomics/pkg/logx"
	"boxonomics/pkg/persistence"
	"boxonomics/pkg/tools"
)

// ProviderName is the registry tag of this provider.
const ProviderName = "analytics"

// Tool names.
const (
	ToolGetFighterStats         = "get_fighter_stats"
	ToolCompareFighters         = "compare_fighters"
	ToolSearchFighters          = "search_fighters"
	ToolFighterCareerTimeline   = "fighter_career_timeline"
	ToolUpcomingFights          = "upcoming_fights"
	ToolAnalyzeCareerTrajectory = "analyze_career_trajectory"
	ToolCompareCommonOpponents  = "compare_common_opponents"
	ToolAnalyzeTitlePerformance = "analyze_title_fight_performance"
)

type handler func(ctx context.Context, args map[string]any) (any, error)

// Provider implements tools.Provider over the fighters/fights/titles schema.
type Provider struct {
	db       *sql.DB
	logger   *logx.Logger
	now      func() time.Time
	handlers map[string]handler
	dialect  persistence.Dialect
}

// Option configures a Provider.
type Option func(*Provider)

// WithClock overrides the clock used for ages and upcoming-fight windows.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithLogger sets the provider logger.
func WithLogger(l *logx.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates the analytics provider. A nil db still lists tools; invoking them is a configuration error.
func New(db *sql.DB, d persistence.Dialect, opts ...Option) *Provider {
	p := &Provider{
		db:      db,
		dialect: d,
		logger:  logx.NewLogger("analytics"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[string]handler{
		ToolGetFighterStats:         p.getFighterStats,
		ToolCompareFighters:         p.compareFighters,
		ToolSearchFighters:          p.searchFighters,
		ToolFighterCareerTimeline:   p.careerTimeline,
		ToolUpcomingFights:          p.upcomingFights,
		ToolAnalyzeCareerTrajectory: p.careerTrajectory,
		ToolCompareCommonOpponents:  p.commonOpponents,
		ToolAnalyzeTitlePerformance: p.titlePerformance,
	}
	return p
}

// Name implements tools.Provider.
func (p *Provider) Name() string { return ProviderName }

// Category implements tools.Provider.
func (p *Provider) Category() tools.Category { return tools.CategoryAnalytics }

// ListTools implements tools.Provider.
func (p *Provider) ListTools() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name: ToolGetFighterStats,
			Description: "Get comprehensive statistics for a boxer including record, KO rate, " +
				"titles, physical stats, and notable wins. Use this when the user " +
				"asks about a specific fighter or wants detailed fighter information.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"name": tools.StringProp("Fighter's name (partial match supported)"),
			}, "name"),
		},
		{
			Name: ToolCompareFighters,
			Description: "Compare two fighters statistically with advantages for each and a " +
				"prediction. Use this when the user wants a head-to-head analysis " +
				"or asks 'who would win' between two fighters.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter1": tools.StringProp("First fighter's name"),
				"fighter2": tools.StringProp("Second fighter's name"),
			}, "fighter1", "fighter2"),
		},
		{
			Name: ToolSearchFighters,
			Description: "Search for fighters by name, weight class, or active status. " +
				"Use when the user's query is ambiguous or they want to discover " +
				"fighters matching certain criteria.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"query":        {Type: "string", Description: "Search query", Default: ""},
				"weight_class": tools.StringProp("Filter by weight class"),
				"active_only":  tools.BoolProp("Only return active fighters", false),
			}),
		},
		{
			Name: ToolFighterCareerTimeline,
			Description: "Get complete career history and timeline for a fighter including " +
				"debut, titles, milestones, and year-by-year statistics.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"name": tools.StringProp("Fighter's name"),
			}, "name"),
		},
		{
			Name:        ToolUpcomingFights,
			Description: "Get upcoming scheduled boxing matches with details.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"date_range":   {Type: "string", Description: "Date range like '7d', '30d', '3m'", Default: "30d"},
				"weight_class": tools.StringProp("Filter by weight class"),
			}),
		},
		{
			Name: ToolAnalyzeCareerTrajectory,
			Description: "Analyze a fighter's career trajectory to see if they're improving, declining, " +
				"or at peak. Uses rolling window analysis of complete fight history.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"name":   tools.StringProp("Fighter name"),
				"window": tools.IntegerProp("Rolling window size", DefaultTrajectoryWindow),
			}, "name"),
		},
		{
			Name: ToolCompareCommonOpponents,
			Description: "Find shared opponents between two fighters and compare their performance. " +
				"Critical for indirect matchup analysis.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter1": tools.StringProp("First fighter's name"),
				"fighter2": tools.StringProp("Second fighter's name"),
			}, "fighter1", "fighter2"),
		},
		{
			Name: ToolAnalyzeTitlePerformance,
			Description: "Analyze how a fighter performs specifically in championship fights vs " +
				"regular fights. Shows if they rise to big occasions.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"name": tools.StringProp("Fighter name"),
			}, "name"),
		},
	}
}

// Invoke implements tools.Provider.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	h, ok := p.handlers[name]
	if !ok {
		return nil, &tools.UnknownToolError{Name: name}
	}
	if p.db == nil {
		return nil, &tools.ConfigurationError{Message: "analytics database not configured"}
	}
	p.logger.Debug("Executing %s", name)
	return h(ctx, args)
}

func (p *Provider) today() string {
	return p.now().Format(time.DateOnly)
}
