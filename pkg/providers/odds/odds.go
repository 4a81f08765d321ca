// Package odds serves boxing betting lines from the-odds-api.com.
package odds

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/providers/internal/httpjson"
	"boxonomics/pkg/tools"
)

// ProviderName is the registry tag of this provider.
const ProviderName = "odds"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.the-odds-api.com"

const oddsPath = "/v4/sports/boxing_boxing/odds/"

// Tool names.
const (
	ToolGetFightOdds          = "get_fight_odds"
	ToolGetOddsMovement       = "get_odds_movement"
	ToolCalculateBettingValue = "calculate_betting_value"
	ToolGetBettingTrends      = "get_betting_trends"
	ToolPredictFightOutcome   = "predict_fight_outcome"
)

// ErrFightNotFound is wrapped when no listed event involves either fighter.
var ErrFightNotFound = errors.New("fight not found in current odds")

// Outcome is one priced side of a market.
type Outcome struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Market is one betting market of a bookmaker.
type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker is one book's prices for an event.
type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update,omitempty"`
	Markets    []Market `json:"markets"`
}

// Event is a fight as listed by the odds feed.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key,omitempty"`
	CommenceTime string      `json:"commence_time,omitempty"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

// SecretFunc resolves a named credential.
type SecretFunc func(name string) (string, error)

// Provider implements tools.Provider for the odds feed.
type Provider struct {
	secrets    SecretFunc
	logger     *logx.Logger
	httpClient *http.Client
	baseURL    string
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another API root.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithSecrets overrides credential lookup.
func WithSecrets(fn SecretFunc) Option {
	return func(p *Provider) { p.secrets = fn }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// New creates the odds provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: DefaultBaseURL,
		secrets: config.GetSecret,
		logger:  logx.NewLogger("odds"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements tools.Provider.
func (p *Provider) Name() string { return ProviderName }

// Category implements tools.Provider.
func (p *Provider) Category() tools.Category { return tools.CategoryOdds }

func pairSchema() tools.InputSchema {
	return tools.NewSchema(map[string]tools.Property{
		"fighter1": tools.StringProp("First fighter name"),
		"fighter2": tools.StringProp("Second fighter name"),
	}, "fighter1", "fighter2")
}

// ListTools implements tools.Provider. It never needs the API key.
func (p *Provider) ListTools() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name:        ToolGetFightOdds,
			Description: "Get current betting odds for a specific boxing match. Requires ODDS_API_KEY (checked when called).",
			InputSchema: pairSchema(),
		},
		{
			Name:        ToolGetOddsMovement,
			Description: "Track how odds have changed over time for a fight. Requires ODDS_API_KEY (checked when called).",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter1":  tools.StringProp("First fighter name"),
				"fighter2":  tools.StringProp("Second fighter name"),
				"timeframe": tools.StringProp("Time period (e.g., '7d', '30d')"),
			}, "fighter1", "fighter2"),
		},
		{
			Name:        ToolCalculateBettingValue,
			Description: "Calculate if there's value in current odds. Requires ODDS_API_KEY (checked when called).",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter_name": tools.StringProp("Fighter to analyze"),
				"opponent":     tools.StringProp("Opponent name"),
			}, "fighter_name", "opponent"),
		},
		{
			Name:        ToolGetBettingTrends,
			Description: "Get betting trends and public money percentages. Requires ODDS_API_KEY (checked when called).",
			InputSchema: pairSchema(),
		},
		{
			Name:        ToolPredictFightOutcome,
			Description: "Predict fight outcome based on odds and betting patterns. Requires ODDS_API_KEY (checked when called).",
			InputSchema: pairSchema(),
		},
	}
}

// Invoke implements tools.Provider.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolGetFightOdds, ToolGetOddsMovement, ToolCalculateBettingValue, ToolGetBettingTrends, ToolPredictFightOutcome:
	default:
		return nil, &tools.UnknownToolError{Name: name}
	}

	key, err := p.secrets(config.EnvOddsAPIKey)
	if err != nil || key == "" {
		return nil, tools.NewMissingSecretError(ProviderName, config.EnvOddsAPIKey)
	}

	first, second := "fighter1", "fighter2"
	if name == ToolCalculateBettingValue {
		first, second = "fighter_name", "opponent"
	}
	fighter1, err := tools.RequireString(args, first)
	if err != nil {
		return nil, err
	}
	fighter2, err := tools.RequireString(args, second)
	if err != nil {
		return nil, err
	}

	event, err := p.findEvent(ctx, key, fighter1, fighter2)
	if err != nil {
		return nil, err
	}

	switch name {
	case ToolGetOddsMovement:
		return map[string]any{
			"current_odds": event,
			"note":         "Historical odds tracking requires premium API access",
			"timeframe":    tools.StringArg(args, "timeframe", "7d"),
		}, nil
	case ToolCalculateBettingValue:
		return bettingValue(fighter1, fighter2, event), nil
	case ToolGetBettingTrends:
		return map[string]any{
			"fight":        fmt.Sprintf("%s vs %s", fighter1, fighter2),
			"current_odds": event,
			"note":         "Betting percentages require premium data feed",
		}, nil
	case ToolPredictFightOutcome:
		return predict(fighter1, fighter2, event), nil
	default:
		return event, nil
	}
}

func (p *Provider) client() *httpjson.Client {
	var opts []httpjson.Option
	if p.httpClient != nil {
		opts = append(opts, httpjson.WithHTTPClient(p.httpClient))
	}
	return httpjson.New(p.baseURL, opts...)
}

// findEvent fetches the current board and returns the first event naming either fighter.
func (p *Provider) findEvent(ctx context.Context, key, fighter1, fighter2 string) (*Event, error) {
	query := url.Values{
		"apiKey":     {key},
		"regions":    {"us"},
		"markets":    {"h2h"},
		"oddsFormat": {"decimal"},
	}
	var events []Event
	if err := p.client().Get(ctx, oddsPath, query, &events); err != nil {
		return nil, fmt.Errorf("failed to fetch odds from API: %w", err)
	}
	p.logger.Debug("Odds board has %d events", len(events))

	if ev := matchEvent(events, fighter1, fighter2); ev != nil {
		return ev, nil
	}
	return nil, fmt.Errorf("%w: '%s vs %s' (available fights: %d)", ErrFightNotFound, fighter1, fighter2, len(events))
}

func matchEvent(events []Event, fighter1, fighter2 string) *Event {
	f1, f2 := strings.ToLower(fighter1), strings.ToLower(fighter2)
	for i := range events {
		home := strings.ToLower(events[i].HomeTeam)
		away := strings.ToLower(events[i].AwayTeam)
		for _, f := range []string{f1, f2} {
			if strings.Contains(home, f) || strings.Contains(away, f) {
				return &events[i]
			}
		}
	}
	return nil
}

// PricedOutcome adds the implied probability to a decimal price.
type PricedOutcome struct {
	Name               string  `json:"name"`
	Price              float64 `json:"price"`
	ImpliedProbability float64 `json:"implied_probability"`
}

func h2h(b Bookmaker) []Outcome {
	for _, m := range b.Markets {
		if m.Key == "h2h" || m.Key == "" {
			return m.Outcomes
		}
	}
	if len(b.Markets) > 0 {
		return b.Markets[0].Outcomes
	}
	return nil
}

func impliedProbability(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return 1 / price
}

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }

func bettingValue(fighter, opponent string, ev *Event) map[string]any {
	if len(ev.Bookmakers) == 0 {
		return map[string]any{"error": "No odds available for this fight"}
	}
	book := ev.Bookmakers[0]
	outcomes := h2h(book)
	priced := make([]PricedOutcome, 0, len(outcomes))
	var overround float64
	for _, o := range outcomes {
		ip := impliedProbability(o.Price)
		overround += ip
		priced = append(priced, PricedOutcome{Name: o.Name, Price: o.Price, ImpliedProbability: round4(ip)})
	}
	return map[string]any{
		"fighter":          fighter,
		"opponent":         opponent,
		"analysis":         "Value calculated from real market odds",
		"bookmaker":        book.Title,
		"odds_data":        priced,
		"bookmaker_margin": round4(overround - 1),
	}
}

func predict(fighter1, fighter2 string, ev *Event) map[string]any {
	if len(ev.Bookmakers) == 0 {
		return map[string]any{"error": "Insufficient data for prediction"}
	}
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, b := range ev.Bookmakers {
		for _, o := range h2h(b) {
			if o.Price <= 0 {
				continue
			}
			sums[o.Name] += o.Price
			counts[o.Name]++
		}
	}
	names := make([]string, 0, len(sums))
	for n := range sums {
		names = append(names, n)
	}
	sort.Strings(names)

	average := make(map[string]float64, len(names))
	implied := make(map[string]float64, len(names))
	favorite, best := "", math.Inf(1)
	for _, n := range names {
		avg := sums[n] / float64(counts[n])
		average[n] = math.Round(avg*100) / 100
		implied[n] = round4(impliedProbability(avg))
		if avg < best {
			favorite, best = n, avg
		}
	}
	return map[string]any{
		"fight":                 fmt.Sprintf("%s vs %s", fighter1, fighter2),
		"odds_based_prediction": "Based on real market odds",
		"favorite":              favorite,
		"average_odds":          average,
		"implied_probability":   implied,
		"bookmakers_sampled":    len(ev.Bookmakers),
		"odds_data":             ev.Bookmakers[0],
	}
}
