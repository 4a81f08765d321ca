// Package social serves Reddit discussion data through Reddit's app-only OAuth API.
package social

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/providers/internal/httpjson"
	"boxonomics/pkg/tools"
)

// ProviderName is the registry tag of this provider.
const ProviderName = "social"

// Endpoints of the production API.
const (
	DefaultBaseURL  = "https://oauth.reddit.com"
	DefaultTokenURL = "https://www.reddit.com/api/v1/access_token"
)

// Tool names.
const (
	ToolSearchBoxingPosts     = "search_boxing_posts"
	ToolGetHotBoxingPosts     = "get_hot_boxing_posts"
	ToolGetFighterMentions    = "get_fighter_mentions"
	ToolCompareFighterBuzz    = "compare_fighter_buzz"
	ToolGetCommunitySentiment = "get_community_sentiment"
)

const (
	defaultSubreddit = "Boxing"
	defaultLimit     = 25
	defaultDaysBack  = 7
	defaultMinScore  = 5
	maxLimit         = 100
)

// DefaultSubreddits are searched for fighter mentions when none are given.
var DefaultSubreddits = []string{
	"Boxing",
	"amateur_boxing",
	"boxingdiscussion",
	"fightporn",
	"sports",
	"MMA",
	"JoeRogan",
	"videos",
	"PublicFreakout",
}

// SecretFunc resolves a named credential.
type SecretFunc func(name string) (string, error)

// Provider implements tools.Provider for Reddit.
type Provider struct {
	now        func() time.Time
	secrets    SecretFunc
	logger     *logx.Logger
	httpClient *http.Client
	cached     *api
	baseURL    string
	tokenURL   string
	cachedKey  string
	mu         sync.Mutex
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points API calls at another root.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithTokenURL points the OAuth token exchange at another endpoint.
func WithTokenURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.tokenURL = u
		}
	}
}

// WithSecrets overrides credential lookup.
func WithSecrets(fn SecretFunc) Option {
	return func(p *Provider) { p.secrets = fn }
}

// WithHTTPClient overrides the base HTTP client used below the OAuth layer.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) { p.httpClient = hc }
}

// WithClock overrides the time source used for mention windows.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates the social provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:  DefaultBaseURL,
		tokenURL: DefaultTokenURL,
		secrets:  config.GetSecret,
		logger:   logx.NewLogger("social"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements tools.Provider.
func (p *Provider) Name() string { return ProviderName }

// Category implements tools.Provider.
func (p *Provider) Category() tools.Category { return tools.CategorySocial }

// ListTools implements tools.Provider.
func (p *Provider) ListTools() []tools.ToolDefinition {
	return []tools.ToolDefinition{
		{
			Name: ToolSearchBoxingPosts,
			Description: "Search Reddit for boxing-related posts. Requires Reddit API credentials (checked when called). " +
				"Returns posts with titles, scores, comments, and engagement metrics.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"query":       tools.StringProp("Search query (fighter name, event, matchup)"),
				"subreddit":   {Type: "string", Description: "Subreddit to search (default: Boxing)", Default: defaultSubreddit},
				"time_filter": {Type: "string", Description: "Time period: hour, day, week, month, year, all", Default: "week"},
				"limit":       tools.IntegerProp("Max posts to return (1-100)", defaultLimit),
				"sort":        {Type: "string", Description: "Sort by: relevance, hot, top, new, comments", Default: "relevance"},
			}, "query"),
		},
		{
			Name: ToolGetHotBoxingPosts,
			Description: "Get hot/trending posts from boxing subreddits. Requires Reddit API credentials (checked when called). " +
				"Shows what's currently popular in the boxing community.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"subreddit": {Type: "string", Description: "Subreddit name", Default: defaultSubreddit},
				"limit":     tools.IntegerProp("Number of posts (1-100)", defaultLimit),
			}),
		},
		{
			Name: ToolGetFighterMentions,
			Description: "Search for mentions of a specific fighter across boxing subreddits. " +
				"Requires Reddit API credentials (checked when called). " +
				"Aggregates mentions with engagement metrics and sentiment indicators.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter_name": tools.StringProp("Fighter's name to search for"),
				"days_back":    tools.IntegerProp("Days to look back (1-30)", defaultDaysBack),
				"min_score":    tools.IntegerProp("Minimum post score to include", defaultMinScore),
				"subreddits":   {Type: "array", Description: "Subreddits to search (default: the boxing community list)", Items: &tools.Property{Type: "string"}},
			}, "fighter_name"),
		},
		{
			Name: ToolCompareFighterBuzz,
			Description: "Compare Reddit buzz between two fighters. Requires Reddit API credentials (checked when called). " +
				"Shows which fighter has more social media presence and engagement.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"fighter1":  tools.StringProp("First fighter name"),
				"fighter2":  tools.StringProp("Second fighter name"),
				"days_back": tools.IntegerProp("Days to analyze (1-30)", defaultDaysBack),
			}, "fighter1", "fighter2"),
		},
		{
			Name: ToolGetCommunitySentiment,
			Description: "Analyze community sentiment on a boxing topic from Reddit discussions. " +
				"Requires Reddit API credentials (checked when called). Uses keyword-based sentiment analysis on posts.",
			InputSchema: tools.NewSchema(map[string]tools.Property{
				"topic":     tools.StringProp("Topic to analyze (fighter, event, etc.)"),
				"subreddit": {Type: "string", Description: "Subreddit to analyze", Default: defaultSubreddit},
				"limit":     tools.IntegerProp("Posts to analyze (1-100)", defaultLimit),
			}, "topic"),
		},
	}
}

// Invoke implements tools.Provider.
func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearchBoxingPosts, ToolGetHotBoxingPosts, ToolGetFighterMentions, ToolCompareFighterBuzz, ToolGetCommunitySentiment:
	default:
		return nil, &tools.UnknownToolError{Name: name}
	}
	a, err := p.api()
	if err != nil {
		return nil, err
	}

	subreddit := tools.StringArg(args, "subreddit", defaultSubreddit)
	limit := clampLimit(tools.IntArg(args, "limit", defaultLimit))
	daysBack := tools.IntArg(args, "days_back", defaultDaysBack)

	switch name {
	case ToolSearchBoxingPosts:
		query, err := tools.RequireString(args, "query")
		if err != nil {
			return nil, err
		}
		return p.searchPosts(ctx, a, query, subreddit,
			tools.StringArg(args, "time_filter", "week"), tools.StringArg(args, "sort", "relevance"), limit)
	case ToolGetHotBoxingPosts:
		return p.hotPosts(ctx, a, subreddit, limit)
	case ToolGetFighterMentions:
		fighter, err := tools.RequireString(args, "fighter_name")
		if err != nil {
			return nil, err
		}
		return p.fighterMentions(ctx, a, fighter, daysBack,
			tools.IntArg(args, "min_score", defaultMinScore), tools.StringSliceArg(args, "subreddits"))
	case ToolCompareFighterBuzz:
		fighter1, err := tools.RequireString(args, "fighter1")
		if err != nil {
			return nil, err
		}
		fighter2, err := tools.RequireString(args, "fighter2")
		if err != nil {
			return nil, err
		}
		return p.compareBuzz(ctx, a, fighter1, fighter2, daysBack)
	default:
		topic, err := tools.RequireString(args, "topic")
		if err != nil {
			return nil, err
		}
		return p.communitySentiment(ctx, a, topic, subreddit, limit)
	}
}

func clampLimit(n int) int {
	return max(1, min(n, maxLimit))
}

// api returns an authenticated client, reusing the token source while the credentials are unchanged.
func (p *Provider) api() (*api, error) {
	id, _ := p.secrets(config.EnvRedditClientID)
	secret, _ := p.secrets(config.EnvRedditClientSecret)
	if id == "" || secret == "" {
		return nil, tools.NewMissingSecretError(ProviderName, config.EnvRedditClientID, config.EnvRedditClientSecret)
	}
	userAgent, _ := p.secrets(config.EnvRedditUserAgent)
	if userAgent == "" {
		userAgent = config.DefaultRedditUserAgent
	}

	key := id + "\x00" + secret + "\x00" + userAgent
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil && p.cachedKey == key {
		return p.cached, nil
	}

	base := p.httpClient
	if base == nil {
		base = &http.Client{Timeout: httpjson.DefaultTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	stamped := &http.Client{
		Timeout:   base.Timeout,
		Transport: &userAgentTransport{base: transport, userAgent: userAgent},
	}

	cc := clientcredentials.Config{
		ClientID:     id,
		ClientSecret: secret,
		TokenURL:     p.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	// The token source outlives any single call, so it gets a background context.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, stamped)
	authed := cc.Client(tokenCtx)
	authed.Timeout = stamped.Timeout

	p.cached = &api{client: httpjson.New(p.baseURL, httpjson.WithHTTPClient(authed))}
	p.cachedKey = key
	p.logger.Debug("Created Reddit client (user agent %q)", userAgent)
	return p.cached, nil
}
