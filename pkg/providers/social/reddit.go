package social

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"boxonomics/pkg/providers/internal/httpjson"
)

// listing is the envelope Reddit wraps every collection in.
type listing struct {
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

// thingData covers the fields used from both posts (t3) and comments (t1).
type thingData struct {
	Distinguished *string `json:"distinguished"`
	Flair         *string `json:"link_flair_text"`
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Author        string  `json:"author"`
	Permalink     string  `json:"permalink"`
	Selftext      string  `json:"selftext"`
	Body          string  `json:"body"`
	Subreddit     string  `json:"subreddit"`
	Score         int     `json:"score"`
	NumComments   int     `json:"num_comments"`
	Gilded        int     `json:"gilded"`
	UpvoteRatio   float64 `json:"upvote_ratio"`
	CreatedUTC    float64 `json:"created_utc"`
	IsVideo       bool    `json:"is_video"`
	Stickied      bool    `json:"stickied"`
}

func (d *thingData) created() time.Time {
	return time.Unix(int64(d.CreatedUTC), 0).UTC()
}

func (d *thingData) author() string {
	if d.Author == "" {
		return "[deleted]"
	}
	return d.Author
}

func (d *thingData) link() string {
	return "https://reddit.com" + d.Permalink
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// userAgentTransport stamps every request, token fetches included. Reddit rejects anonymous agents.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(req) //nolint:wrapcheck // transport passthrough
}

// api wraps the authenticated JSON client with the few Reddit endpoints used.
type api struct {
	client *httpjson.Client
}

func (a *api) posts(ctx context.Context, path string, query url.Values) ([]thingData, error) {
	query.Set("raw_json", "1")
	var l listing
	if err := a.client.Get(ctx, path, query, &l); err != nil {
		return nil, err //nolint:wrapcheck // callers add the tool context
	}
	out := make([]thingData, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		if c.Kind == "t3" {
			out = append(out, c.Data)
		}
	}
	return out, nil
}

func (a *api) search(ctx context.Context, subreddit, q, sort, timeFilter string, limit int) ([]thingData, error) {
	query := url.Values{
		"q":           {q},
		"restrict_sr": {"1"},
		"t":           {timeFilter},
		"limit":       {strconv.Itoa(limit)},
	}
	if sort != "" {
		query.Set("sort", sort)
	}
	return a.posts(ctx, fmt.Sprintf("/r/%s/search", url.PathEscape(subreddit)), query)
}

func (a *api) hot(ctx context.Context, subreddit string, limit int) ([]thingData, error) {
	return a.posts(ctx, fmt.Sprintf("/r/%s/hot", url.PathEscape(subreddit)), url.Values{"limit": {strconv.Itoa(limit)}})
}

// topComments returns the first top-level comments of a post.
func (a *api) topComments(ctx context.Context, subreddit, postID string, limit int) ([]thingData, error) {
	query := url.Values{
		"limit":    {strconv.Itoa(limit)},
		"depth":    {"1"},
		"sort":     {"top"},
		"raw_json": {"1"},
	}
	var pages []listing
	path := fmt.Sprintf("/r/%s/comments/%s", url.PathEscape(subreddit), url.PathEscape(postID))
	if err := a.client.Get(ctx, path, query, &pages); err != nil {
		return nil, err //nolint:wrapcheck // callers add the tool context
	}
	if len(pages) < 2 {
		return nil, nil
	}
	var out []thingData
	for _, c := range pages[1].Data.Children {
		if c.Kind != "t1" {
			continue
		}
		out = append(out, c.Data)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
