package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrometheus answers instant queries with canned vectors keyed by PromQL text.
func fakePrometheus(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		result, ok := answers[r.Form.Get("query")]
		if !ok {
			result = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":` + result + `}}`))
	}))
}

func TestToolCallTotals(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`sum by (tool, provider, outcome) (boxonomics_tool_calls_total)`: `[
			{"metric":{"tool":"get_odds","provider":"odds","outcome":"success"},"value":[1700000000,"3"]},
			{"metric":{"tool":"get_odds","provider":"odds","outcome":"error"},"value":[1700000000,"1"]},
			{"metric":{"tool":"search_fighters","provider":"analytics","outcome":"success"},"value":[1700000000,"9"]}
		]`,
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	totals, err := q.ToolCallTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, "search_fighters", totals[0].Tool)
	assert.Equal(t, int64(9), totals[0].Calls)
	assert.Equal(t, "get_odds", totals[1].Tool)
	assert.Equal(t, "odds", totals[1].Provider)
	assert.Equal(t, int64(4), totals[1].Calls)
	assert.Equal(t, int64(1), totals[1].Outcomes["error"])
}

func TestQueriesTotalEmpty(t *testing.T) {
	srv := fakePrometheus(t, nil)
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	n, err := q.QueriesTotal(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestModelUsageByModel(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`sum by (model, type) (boxonomics_model_tokens_total)`: `[
			{"metric":{"model":"gpt-4o","type":"input"},"value":[1700000000,"1200"]},
			{"metric":{"model":"gpt-4o","type":"output"},"value":[1700000000,"300"]}
		]`,
		`sum by (model) (boxonomics_model_requests_total)`: `[
			{"metric":{"model":"gpt-4o"},"value":[1700000000,"7"]}
		]`,
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	usage, err := q.ModelUsageByModel(context.Background())
	require.NoError(t, err)
	require.Contains(t, usage, "gpt-4o")
	assert.Equal(t, int64(1200), usage["gpt-4o"].InputTokens)
	assert.Equal(t, int64(300), usage["gpt-4o"].OutputTokens)
	assert.Equal(t, int64(7), usage["gpt-4o"].Requests)
}

func TestQueryServiceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","errorType":"bad_data","error":"parse error"}`))
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	_, err = q.ToolCallTotals(context.Background())
	require.Error(t, err)
}
