package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/config"
	"boxonomics/pkg/tools"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func secrets(key string) SecretFunc {
	return func(name string) (string, error) {
		if name == config.EnvNewsAPIKey && key != "" {
			return key, nil
		}
		return "", errors.New("not set")
	}
}

// articleCounts maps a search term prefix to the number of articles the fake API returns.
func newServer(t *testing.T, articleCounts map[string]int) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, everythingPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("apiKey"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "en", q.Get("language"))

		n := articleCounts[strings.TrimSuffix(q.Get("q"), " boxing")]
		articles := make([]map[string]any, 0, n)
		for i := 0; i < n; i++ {
			a := map[string]any{
				"source":      map[string]any{"id": nil, "name": "Ring"},
				"title":       fmt.Sprintf("%s headline %d", q.Get("q"), i+1),
				"url":         fmt.Sprintf("https://example.com/%d", i),
				"publishedAt": "2026-02-28T10:00:00Z",
				"author":      nil,
			}
			if i == 0 {
				a["author"] = "J. Writer"
				a["description"] = "Lead story"
			}
			articles = append(articles, a)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "articles": articles})
	}))
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithSecrets(secrets("k")), WithClock(func() time.Time { return fixedNow }))
}

func TestMissingKey(t *testing.T) {
	p := New(WithSecrets(secrets("")))
	assert.Len(t, p.ListTools(), 2)
	_, err := p.Invoke(context.Background(), ToolGetFightNews, nil)
	require.Error(t, err)
	assert.True(t, tools.IsConfigurationError(err))
}

func TestGetFightNews(t *testing.T) {
	var gotFrom, gotSize string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotSize = r.URL.Query().Get("pageSize")
		_, _ = w.Write([]byte(`{"status":"ok","articles":[{"source":{"name":"ESPN"},"title":"Fury returns","url":"u","publishedAt":"2026-02-27"}]}`))
	}))
	defer srv.Close()
	p := New(WithBaseURL(srv.URL), WithSecrets(secrets("k")), WithClock(func() time.Time { return fixedNow }))

	out, err := p.Invoke(context.Background(), ToolGetFightNews, map[string]any{"fighter_name": "Tyson Fury", "days_back": 3.0})
	require.NoError(t, err)
	res := out.(*NewsResult)
	assert.Equal(t, "Tyson Fury boxing", res.Query)
	assert.Equal(t, "Last 3 days", res.Period)
	assert.Equal(t, "2026-02-26", gotFrom)
	assert.Equal(t, "10", gotSize)
	require.Equal(t, 1, res.TotalArticles)
	assert.Equal(t, "Unknown", res.Articles[0].Author)
	assert.Equal(t, "ESPN", res.Articles[0].Source)
}

func TestGetFightNewsWithoutFighter(t *testing.T) {
	p := newServer(t, map[string]int{"boxing": 2})
	out, err := p.Invoke(context.Background(), ToolGetFightNews, nil)
	require.NoError(t, err)
	res := out.(*NewsResult)
	assert.Equal(t, "boxing", res.Query)
	assert.Equal(t, 2, res.TotalArticles)
	assert.Equal(t, "J. Writer", res.Articles[0].Author)
	assert.Equal(t, "Lead story", res.Articles[0].Description)
}

func TestCompareFighterHype(t *testing.T) {
	p := newServer(t, map[string]int{"Fury": 6, "Usyk": 4})
	out, err := p.Invoke(context.Background(), ToolCompareFighterHype, map[string]any{"fighter1": "Fury", "fighter2": "Usyk"})
	require.NoError(t, err)
	cmp := out.(*HypeComparison)
	assert.Equal(t, "Fury", cmp.Verdict.MediaLeader)
	assert.Equal(t, 2, cmp.Verdict.ArticleDifference)
	assert.InDelta(t, 50.0, cmp.Verdict.PercentageAdvantage, 1e-9)
	assert.Equal(t, "Fury has 2 more articles (50% more coverage)", cmp.Verdict.Interpretation)
	assert.Len(t, cmp.Comparison["Fury"].SampleHeadlines, 3)
	assert.Len(t, cmp.Comparison["Usyk"].SampleHeadlines, 3)
}

func TestCompareFighterHypeNoCoverage(t *testing.T) {
	p := newServer(t, nil)
	out, err := p.Invoke(context.Background(), ToolCompareFighterHype, map[string]any{"fighter1": "A", "fighter2": "B"})
	require.NoError(t, err)
	assert.Equal(t, "No news articles found for either fighter", out.(map[string]any)["error"])
}

func TestCompareRequiresBothFighters(t *testing.T) {
	p := newServer(t, nil)
	_, err := p.Invoke(context.Background(), ToolCompareFighterHype, map[string]any{"fighter1": "A"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fighter2")
}
