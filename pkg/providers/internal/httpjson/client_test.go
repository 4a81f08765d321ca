package httpjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "boxing", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 2}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithHeader("X-Api-Key", "secret"))
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, c.Get(context.Background(), "/v1/items", url.Values{"q": {"boxing"}}, &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, srv.URL, c.BaseURL())
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(srv.URL).Get(context.Background(), "/odds", nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusTooManyRequests))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestGetBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	var out map[string]any
	err := New(srv.URL).Get(context.Background(), "/", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}
