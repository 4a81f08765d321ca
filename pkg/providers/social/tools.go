package social

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"boxonomics/pkg/providers/internal/rank"
)

const (
	commentFetchers   = 4
	mentionSearchSize = 50
	mentionCap        = 100
)

// Comment is a trimmed top-level reply.
type Comment struct {
	Author     string `json:"author"`
	Body       string `json:"body"`
	CreatedUTC string `json:"created_utc,omitempty"`
	Score      int    `json:"score"`
}

// Post is a trimmed submission with a sample of its comments.
type Post struct {
	Flair         *string   `json:"flair"`
	Distinguished *string   `json:"distinguished,omitempty"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	CreatedUTC    string    `json:"created_utc"`
	URL           string    `json:"url"`
	Selftext      string    `json:"selftext"`
	Comments      []Comment `json:"top_comments"`
	Score         int       `json:"score"`
	NumComments   int       `json:"num_comments"`
	Gilded        int       `json:"gilded,omitempty"`
	UpvoteRatio   float64   `json:"upvote_ratio"`
	IsVideo       bool      `json:"is_video"`
	Stickied      bool      `json:"stickied,omitempty"`
}

// postShape sets how much of a post and its comments is kept.
type postShape struct {
	comments    int
	commentBody int
	selftext    int
}

var (
	searchShape = postShape{comments: 5, commentBody: 500, selftext: 1000}
	hotShape    = postShape{comments: 3, commentBody: 300, selftext: 500}
)

// SearchResult is the search_boxing_posts payload.
type SearchResult struct {
	SearchParams map[string]any `json:"search_params"`
	Query        string         `json:"query"`
	Subreddit    string         `json:"subreddit"`
	TimeFilter   string         `json:"time_filter"`
	Posts        []Post         `json:"posts"`
	TotalPosts   int            `json:"total_posts"`
}

// HotResult is the get_hot_boxing_posts payload.
type HotResult struct {
	Subreddit  string `json:"subreddit"`
	FetchTime  string `json:"fetch_time"`
	Posts      []Post `json:"posts"`
	TotalPosts int    `json:"total_posts"`
}

func (p *Provider) searchPosts(ctx context.Context, a *api, query, subreddit, timeFilter, sortBy string, limit int) (*SearchResult, error) {
	found, err := a.search(ctx, subreddit, query, sortBy, timeFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("reddit search failed: %w", err)
	}
	return &SearchResult{
		Query:        query,
		Subreddit:    subreddit,
		TimeFilter:   timeFilter,
		TotalPosts:   len(found),
		Posts:        p.shapePosts(ctx, a, subreddit, found, searchShape),
		SearchParams: map[string]any{"sort": sortBy, "limit": limit},
	}, nil
}

func (p *Provider) hotPosts(ctx context.Context, a *api, subreddit string, limit int) (*HotResult, error) {
	found, err := a.hot(ctx, subreddit, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch hot posts: %w", err)
	}
	return &HotResult{
		Subreddit:  subreddit,
		TotalPosts: len(found),
		Posts:      p.shapePosts(ctx, a, subreddit, found, hotShape),
		FetchTime:  p.now().UTC().Format(time.RFC3339),
	}, nil
}

// shapePosts trims posts and fetches their comments concurrently.
// A failed comment fetch leaves that post without comments.
func (p *Provider) shapePosts(ctx context.Context, a *api, subreddit string, found []thingData, shape postShape) []Post {
	posts := make([]Post, len(found))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commentFetchers)
	for i := range found {
		d := &found[i]
		posts[i] = Post{
			Title:         d.Title,
			Author:        d.author(),
			Score:         d.Score,
			UpvoteRatio:   d.UpvoteRatio,
			NumComments:   d.NumComments,
			CreatedUTC:    d.created().Format(time.RFC3339),
			URL:           d.link(),
			Selftext:      truncate(d.Selftext, shape.selftext),
			IsVideo:       d.IsVideo,
			Flair:         d.Flair,
			Gilded:        d.Gilded,
			Distinguished: d.Distinguished,
			Stickied:      d.Stickied,
			Comments:      []Comment{},
		}
		if d.ID == "" || d.NumComments == 0 {
			continue
		}
		sub := subreddit
		if d.Subreddit != "" {
			sub = d.Subreddit
		}
		g.Go(func() error {
			replies, err := a.topComments(gctx, sub, d.ID, shape.comments)
			if err != nil {
				p.logger.Warn("Failed to fetch comments for %s: %v", d.ID, err)
				return nil
			}
			for j := range replies {
				r := &replies[j]
				posts[i].Comments = append(posts[i].Comments, Comment{
					Author:     r.author(),
					Body:       truncate(r.Body, shape.commentBody),
					Score:      r.Score,
					CreatedUTC: r.created().Format(time.RFC3339),
				})
			}
			return nil
		})
	}
	_ = g.Wait()
	return posts
}

// Mention is a post naming a fighter.
type Mention struct {
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	CreatedUTC  string  `json:"created_utc"`
	URL         string  `json:"url"`
	TextPreview string  `json:"text_preview"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	UpvoteRatio float64 `json:"upvote_ratio"`
}

// AggregateMetrics summarises engagement across mentions.
type AggregateMetrics struct {
	TotalScore         int     `json:"total_score"`
	TotalComments      int     `json:"total_comments"`
	AverageScore       float64 `json:"average_score"`
	AverageUpvoteRatio float64 `json:"average_upvote_ratio"`
}

// MentionAnalysis labels the engagement and tone.
type MentionAnalysis struct {
	EngagementLevel    string `json:"engagement_level"`
	SentimentIndicator string `json:"sentiment_indicator"`
}

// MentionReport is the get_fighter_mentions payload.
type MentionReport struct {
	Fighter            string           `json:"fighter"`
	SubredditsSearched []string         `json:"subreddits_searched"`
	FailedSubreddits   []string         `json:"failed_subreddits,omitempty"`
	Mentions           []Mention        `json:"mentions"`
	Analysis           MentionAnalysis  `json:"analysis"`
	AggregateMetrics   AggregateMetrics `json:"aggregate_metrics"`
	SearchPeriodDays   int              `json:"search_period_days"`
	TotalMentions      int              `json:"total_mentions"`
}

// EngagementLevel buckets an average post score.
func EngagementLevel(avgScore float64) string {
	switch {
	case avgScore > 100:
		return "High"
	case avgScore > 50:
		return "Medium"
	default:
		return "Low"
	}
}

// SentimentIndicator buckets an average upvote ratio.
func SentimentIndicator(avgRatio float64) string {
	switch {
	case avgRatio > 0.75:
		return "Positive"
	case avgRatio > 0.5:
		return "Mixed"
	default:
		return "Controversial"
	}
}

func roundTo(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}

func (p *Provider) fighterMentions(ctx context.Context, a *api, fighter string, daysBack, minScore int, subreddits []string) (*MentionReport, error) {
	if len(subreddits) == 0 {
		subreddits = DefaultSubreddits
	}
	timeFilter := "week"
	if daysBack > 7 {
		timeFilter = "month"
	}
	threshold := p.now().AddDate(0, 0, -daysBack)

	perSub := make([][]Mention, len(subreddits))
	failed := make([]bool, len(subreddits))
	var g errgroup.Group
	g.SetLimit(commentFetchers)
	for i, sub := range subreddits {
		g.Go(func() error {
			found, err := a.search(ctx, sub, fighter, "", timeFilter, mentionSearchSize)
			if err != nil {
				p.logger.Warn("Failed to search r/%s: %v", sub, err)
				failed[i] = true
				return nil
			}
			for j := range found {
				d := &found[j]
				if d.created().Before(threshold) || d.Score < minScore {
					continue
				}
				perSub[i] = append(perSub[i], Mention{
					Subreddit:   sub,
					Title:       d.Title,
					Author:      d.author(),
					Score:       d.Score,
					UpvoteRatio: d.UpvoteRatio,
					NumComments: d.NumComments,
					CreatedUTC:  d.created().Format(time.RFC3339),
					URL:         d.link(),
					TextPreview: truncate(d.Selftext, 300),
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &MentionReport{
		Fighter:            fighter,
		SearchPeriodDays:   daysBack,
		SubredditsSearched: subreddits,
		Mentions:           []Mention{},
	}
	for i, didFail := range failed {
		if didFail {
			report.FailedSubreddits = append(report.FailedSubreddits, subreddits[i])
		}
	}
	if len(report.FailedSubreddits) == len(subreddits) {
		return nil, fmt.Errorf("failed to search for fighter mentions: all %d subreddits failed", len(subreddits))
	}

	var ratioSum float64
	for _, ms := range perSub {
		for _, m := range ms {
			report.Mentions = append(report.Mentions, m)
			report.AggregateMetrics.TotalScore += m.Score
			report.AggregateMetrics.TotalComments += m.NumComments
			ratioSum += m.UpvoteRatio
		}
	}
	sort.SliceStable(report.Mentions, func(i, j int) bool {
		return report.Mentions[i].Score > report.Mentions[j].Score
	})

	report.TotalMentions = len(report.Mentions)
	var avgScore, avgRatio float64
	if n := report.TotalMentions; n > 0 {
		avgScore = float64(report.AggregateMetrics.TotalScore) / float64(n)
		avgRatio = ratioSum / float64(n)
	}
	report.AggregateMetrics.AverageScore = roundTo(avgScore, 2)
	report.AggregateMetrics.AverageUpvoteRatio = roundTo(avgRatio, 3)
	report.Analysis = MentionAnalysis{
		EngagementLevel:    EngagementLevel(avgScore),
		SentimentIndicator: SentimentIndicator(avgRatio),
	}
	if len(report.Mentions) > mentionCap {
		report.Mentions = report.Mentions[:mentionCap]
	}
	return report, nil
}

// Buzz summarises one fighter in a buzz comparison.
type Buzz struct {
	Sentiment     string   `json:"sentiment"`
	TopPosts      []string `json:"top_posts"`
	TotalMentions int      `json:"total_mentions"`
	TotalScore    int      `json:"total_score"`
	TotalComments int      `json:"total_comments"`
	AvgScore      float64  `json:"avg_score"`
}

// BuzzVerdict names the fighter with more mentions.
type BuzzVerdict struct {
	Leader           string `json:"reddit_buzz_leader"`
	MentionAdvantage string `json:"mention_advantage"`
	Interpretation   string `json:"interpretation"`
}

// BuzzComparison is the compare_fighter_buzz payload.
type BuzzComparison struct {
	Comparison     map[string]Buzz `json:"comparison"`
	Fighter1       string          `json:"fighter1"`
	Fighter2       string          `json:"fighter2"`
	AnalysisPeriod string          `json:"analysis_period"`
	Verdict        BuzzVerdict     `json:"verdict"`
}

func buzzOf(r *MentionReport) Buzz {
	n := min(3, len(r.Mentions))
	top := make([]string, 0, n)
	for _, m := range r.Mentions[:n] {
		top = append(top, m.Title)
	}
	return Buzz{
		TotalMentions: r.TotalMentions,
		TotalScore:    r.AggregateMetrics.TotalScore,
		TotalComments: r.AggregateMetrics.TotalComments,
		AvgScore:      r.AggregateMetrics.AverageScore,
		Sentiment:     r.Analysis.SentimentIndicator,
		TopPosts:      top,
	}
}

func (p *Provider) compareBuzz(ctx context.Context, a *api, fighter1, fighter2 string, daysBack int) (*BuzzComparison, error) {
	var m1, m2 *MentionReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		m1, err = p.fighterMentions(gctx, a, fighter1, daysBack, defaultMinScore, nil)
		return err
	})
	g.Go(func() (err error) {
		m2, err = p.fighterMentions(gctx, a, fighter2, daysBack, defaultMinScore, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // already carries the tool context
	}

	leader, _, pct := rank.Advantage(fighter1, fighter2, m1.TotalMentions, m2.TotalMentions)
	verdict := BuzzVerdict{
		Leader:           leader,
		MentionAdvantage: fmt.Sprintf("%.1f%%", pct),
		Interpretation:   "Equal Reddit presence",
	}
	if leader != rank.Tied {
		verdict.Interpretation = fmt.Sprintf("%s has %.0f%% more Reddit mentions", leader, pct)
	}
	return &BuzzComparison{
		Fighter1:       fighter1,
		Fighter2:       fighter2,
		AnalysisPeriod: fmt.Sprintf("Last %d days", daysBack),
		Comparison: map[string]Buzz{
			fighter1: buzzOf(m1),
			fighter2: buzzOf(m2),
		},
		Verdict: verdict,
	}, nil
}

var (
	positiveWords = []string{"great", "amazing", "best", "incredible", "fantastic", "love", "impressive", "dominant", "skilled"}
	negativeWords = []string{"terrible", "worst", "boring", "overrated", "disappointing", "weak", "lost", "bad", "poor"}
)

// SentimentBreakdown gives the share of posts per tone, in percent.
type SentimentBreakdown struct {
	Positive float64 `json:"positive_percentage"`
	Negative float64 `json:"negative_percentage"`
	Neutral  float64 `json:"neutral_percentage"`
}

// SentimentReport is the get_community_sentiment payload.
type SentimentReport struct {
	SamplePosts      map[string][]string `json:"sample_posts"`
	Topic            string              `json:"topic"`
	Subreddit        string              `json:"subreddit"`
	OverallSentiment string              `json:"overall_sentiment"`
	Note             string              `json:"note"`
	Breakdown        SentimentBreakdown  `json:"sentiment_breakdown"`
	PostsAnalyzed    int                 `json:"posts_analyzed"`
	TotalEngagement  int                 `json:"total_engagement"`
}

// Tone classifies text by counting keyword hits. It returns 1, -1 or 0.
func Tone(text string) int {
	text = strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return 1
	case neg > pos:
		return -1
	default:
		return 0
	}
}

// OverallSentiment labels a breakdown.
func OverallSentiment(b SentimentBreakdown) string {
	switch {
	case b.Positive > 50:
		return "Positive"
	case b.Negative > 50:
		return "Negative"
	case b.Positive > b.Negative:
		return "Mostly Positive"
	case b.Negative > b.Positive:
		return "Mostly Negative"
	default:
		return "Neutral/Mixed"
	}
}

func (p *Provider) communitySentiment(ctx context.Context, a *api, topic, subreddit string, limit int) (*SentimentReport, error) {
	found, err := a.search(ctx, subreddit, topic, "", "month", limit)
	if err != nil {
		return nil, fmt.Errorf("sentiment analysis failed: %w", err)
	}

	report := &SentimentReport{
		Topic:         topic,
		Subreddit:     subreddit,
		PostsAnalyzed: len(found),
		SamplePosts:   map[string][]string{"positive": {}, "negative": {}},
		Note:          "Sentiment analysis uses keyword matching. For more accurate results, consider using NLP libraries.",
	}
	var pos, neg, neutral int
	for i := range found {
		d := &found[i]
		report.TotalEngagement += d.Score + d.NumComments
		switch Tone(d.Title + " " + d.Selftext) {
		case 1:
			pos++
			if len(report.SamplePosts["positive"]) < 3 {
				report.SamplePosts["positive"] = append(report.SamplePosts["positive"], d.Title)
			}
		case -1:
			neg++
			if len(report.SamplePosts["negative"]) < 3 {
				report.SamplePosts["negative"] = append(report.SamplePosts["negative"], d.Title)
			}
		default:
			neutral++
		}
	}

	var b SentimentBreakdown
	if n := float64(len(found)); n > 0 {
		b = SentimentBreakdown{
			Positive: float64(pos) / n * 100,
			Negative: float64(neg) / n * 100,
			Neutral:  float64(neutral) / n * 100,
		}
	}
	report.OverallSentiment = OverallSentiment(b)
	report.Breakdown = SentimentBreakdown{
		Positive: roundTo(b.Positive, 1),
		Negative: roundTo(b.Negative, 1),
		Neutral:  roundTo(b.Neutral, 1),
	}
	return report, nil
}
