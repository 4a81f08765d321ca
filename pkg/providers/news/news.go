// Package news serves boxing press coverage from newsapi.org.
package news

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/providers/internal/httpjson"
	"boxonomics/pkg/providers/internal/rank"
	"boxonomics/pkg/tools"
)

// ProviderName is the registry tag of this provider.
const ProviderName = "news"

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://newsapi.org"

const everythingPath = "/v2/everything"

// Tool names.
const (
	ToolGetFightNews       = "get_fight_news"
	ToolCompareFighterHype = "compare_fighter_hype"
)

const (
	defaultDaysBack   = 7
	defaultMaxResults = 10
	hypeSampleSize    = 50
	headlineSample    = 3
)

// SecretFunc resolves a named credential.
type SecretFunc func(name string) (string, error)

// Article is one news item as returned to the model.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Source      string `json:"source"`
	Author      string `json:"author"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
}

// NewsResult is the get_fight_news payload.
type NewsResult struct {
	Query         string    `json:"query"`
	Period        string    `json:"period"`
	Articles      []Article `json:"articles"`
	TotalArticles int       `json:"total_articles"`
}

type apiArticle struct {
	Author      *string `json:"author"`
	Description *string `json:"description"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type apiResponse struct {
	Status   string       `json:"status"`
	Articles []apiArticle `json:"articles"`
}

// Provider implements tools.Provider for newsapi.org.
type Provider struct {
	secrets    SecretFunc
	logger     *logx.Logger
	httpClient *http.Client
	now        func() time.Time
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

// WithClock overrides the time source used for the search window.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates the news provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: DefaultBaseURL,
		secrets: config.GetSecret,
		logger:  logx.NewLogger("news"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements tools.Provider.
func (p *Provider) Name() string { return ProviderName }

// Category implements tools.Provider.
func (p *Provider) Category() tools.Category { return tools.CategoryNews }

// ListTools implements tools.Provider.
func (p *Provider) ListTools() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name: ToolGetFightNews,
			Description: "Get REAL boxing news articles from News API. Requires NEWS_API_KEY (checked when called). " +
				"Returns actual articles with titles, summaries, sources, and URLs.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter_name": tools.StringProp("Fighter to search for (optional)"),
				"days_back":    tools.IntegerProp("How many days of news to fetch", defaultDaysBack),
				"max_results":  tools.IntegerProp("Maximum articles to return", defaultMaxResults),
			}),
		},
		{
			Name: ToolCompareFighterHype,
			Description: "Compare media attention between fighters based on REAL news article counts. " +
				"Requires NEWS_API_KEY (checked when called). Uses actual article counts, no fake metrics.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter1":  tools.StringProp("First fighter name"),
				"fighter2":  tools.StringProp("Second fighter name"),
				"days_back": tools.IntegerProp("Days of media coverage to analyze", defaultDaysBack),
			}, "fighter1", "fighter2"),
		},
	}
}

// Invoke implements tools.Provider.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if name != ToolGetFightNews && name != ToolCompareFighterHype {
		return nil, &tools.UnknownToolError{Name: name}
	}
	key, err := p.secrets(config.EnvNewsAPIKey)
	if err != nil || key == "" {
		return nil, tools.NewMissingSecretError(ProviderName, config.EnvNewsAPIKey)
	}
	daysBack := tools.IntArg(args, "days_back", defaultDaysBack)

	if name == ToolGetFightNews {
		return p.fightNews(ctx, key, tools.StringArg(args, "fighter_name", ""), daysBack,
			tools.IntArg(args, "max_results", defaultMaxResults))
	}

	fighter1, err := tools.RequireString(args, "fighter1")
	if err != nil {
		return nil, err
	}
	fighter2, err := tools.RequireString(args, "fighter2")
	if err != nil {
		return nil, err
	}
	return p.compareHype(ctx, key, fighter1, fighter2, daysBack)
}

func (p *Provider) fightNews(ctx context.Context, key, fighter string, daysBack, maxResults int) (*NewsResult, error) {
	q := "boxing"
	if fighter != "" {
		q = fighter + " boxing"
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	from := p.now().AddDate(0, 0, -daysBack).Format(time.DateOnly)

	query := url.Values{
		"q":        {q},
		"from":     {from},
		"sortBy":   {"publishedAt"},
		"language": {"en"},
		"pageSize": {strconv.Itoa(maxResults)},
		"apiKey":   {key},
	}
	var opts []httpjson.Option
	if p.httpClient != nil {
		opts = append(opts, httpjson.WithHTTPClient(p.httpClient))
	}
	var resp apiResponse
	if err := httpjson.New(p.baseURL, opts...).Get(ctx, everythingPath, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch news from API: %w", err)
	}

	articles := make([]Article, 0, len(resp.Articles))
	for i := range resp.Articles {
		a := &resp.Articles[i]
		articles = append(articles, Article{
			Title:       a.Title,
			Description: deref(a.Description, ""),
			Source:      a.Source.Name,
			Author:      deref(a.Author, "Unknown"),
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
		})
	}
	p.logger.Debug("News query %q returned %d articles", q, len(articles))
	return &NewsResult{
		Query:         q,
		Period:        fmt.Sprintf("Last %d days", daysBack),
		TotalArticles: len(articles),
		Articles:      articles,
	}, nil
}

func deref(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// Coverage summarises one fighter's press volume.
type Coverage struct {
	SampleHeadlines []string `json:"sample_headlines"`
	NewsArticles    int      `json:"news_articles"`
}

// HypeVerdict names the fighter with more coverage.
type HypeVerdict struct {
	MediaLeader         string  `json:"media_leader"`
	Interpretation      string  `json:"interpretation"`
	ArticleDifference   int     `json:"article_difference"`
	PercentageAdvantage float64 `json:"percentage_advantage"`
}

// HypeComparison is the compare_fighter_hype payload.
type HypeComparison struct {
	Comparison     map[string]Coverage `json:"comparison"`
	Fighter1       string              `json:"fighter1"`
	Fighter2       string              `json:"fighter2"`
	AnalysisPeriod string              `json:"analysis_period"`
	Verdict        HypeVerdict         `json:"verdict"`
}

func (p *Provider) compareHype(ctx context.Context, key, fighter1, fighter2 string, daysBack int) (any, error) {
	news1, err := p.fightNews(ctx, key, fighter1, daysBack, hypeSampleSize)
	if err != nil {
		return nil, err
	}
	news2, err := p.fightNews(ctx, key, fighter2, daysBack, hypeSampleSize)
	if err != nil {
		return nil, err
	}
	if news1.TotalArticles == 0 && news2.TotalArticles == 0 {
		return map[string]any{
			"error":      "No news articles found for either fighter",
			"fighter1":   fighter1,
			"fighter2":   fighter2,
			"suggestion": "Try searching with full fighter names or check spelling",
		}, nil
	}

	leader, diff, pct := rank.Advantage(fighter1, fighter2, news1.TotalArticles, news2.TotalArticles)
	verdict := HypeVerdict{MediaLeader: leader, ArticleDifference: diff, Interpretation: "Equal media coverage"}
	if leader != rank.Tied {
		verdict.PercentageAdvantage = math.Round(pct*10) / 10
		verdict.Interpretation = fmt.Sprintf("%s has %d more articles (%.0f%% more coverage)", leader, diff, pct)
	}

	return &HypeComparison{
		Fighter1:       fighter1,
		Fighter2:       fighter2,
		AnalysisPeriod: fmt.Sprintf("Last %d days", daysBack),
		Comparison: map[string]Coverage{
			fighter1: coverage(news1),
			fighter2: coverage(news2),
		},
		Verdict: verdict,
	}, nil
}

func coverage(r *NewsResult) Coverage {
	n := min(headlineSample, len(r.Articles))
	headlines := make([]string, 0, n)
	for _, a := range r.Articles[:n] {
		headlines = append(headlines, a.Title)
	}
	return Coverage{NewsArticles: r.TotalArticles, SampleHeadlines: headlines}
}
