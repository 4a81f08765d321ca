package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ToolTotals is the fleet-wide call count for one tool as seen by a Prometheus server.
type ToolTotals struct {
	Outcomes map[string]int64 `json:"outcomes"`
	Tool     string           `json:"tool"`
	Provider string           `json:"provider"`
	Calls    int64            `json:"calls"`
}

// ModelUsage aggregates token counts for one model.
type ModelUsage struct {
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	Requests     int64  `json:"requests"`
}

// QueryService reads aggregated boxonomics metrics back from a Prometheus server
// that scrapes one or more `serve` instances.
type QueryService struct {
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a query service for the Prometheus server at prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", query, err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("query %q returned %s, expected vector", query, result.Type())
	}
	return vector, nil
}

// ToolCallTotals returns per-tool call counts split by outcome, busiest tool first.
func (q *QueryService) ToolCallTotals(ctx context.Context) ([]ToolTotals, error) {
	vector, err := q.vector(ctx, `sum by (tool, provider, outcome) (boxonomics_tool_calls_total)`)
	if err != nil {
		return nil, err
	}

	byTool := make(map[string]*ToolTotals)
	for _, sample := range vector {
		name := string(sample.Metric["tool"])
		t, ok := byTool[name]
		if !ok {
			t = &ToolTotals{Tool: name, Provider: string(sample.Metric["provider"]), Outcomes: map[string]int64{}}
			byTool[name] = t
		}
		n := int64(sample.Value)
		t.Outcomes[string(sample.Metric["outcome"])] += n
		t.Calls += n
	}

	out := make([]ToolTotals, 0, len(byTool))
	for _, t := range byTool {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Tool < out[j].Tool
	})
	return out, nil
}

// QueriesTotal returns the number of user queries answered across all scraped instances.
func (q *QueryService) QueriesTotal(ctx context.Context) (int64, error) {
	vector, err := q.vector(ctx, `sum(boxonomics_queries_total)`)
	if err != nil {
		return 0, err
	}
	if len(vector) == 0 {
		return 0, nil
	}
	return int64(vector[0].Value), nil
}

// ModelUsageByModel returns token and request totals keyed by model name.
func (q *QueryService) ModelUsageByModel(ctx context.Context) (map[string]*ModelUsage, error) {
	result := make(map[string]*ModelUsage)
	get := func(name string) *ModelUsage {
		u, ok := result[name]
		if !ok {
			u = &ModelUsage{Model: name}
			result[name] = u
		}
		return u
	}

	tokens, err := q.vector(ctx, `sum by (model, type) (boxonomics_model_tokens_total)`)
	if err != nil {
		return nil, err
	}
	for _, sample := range tokens {
		u := get(string(sample.Metric["model"]))
		switch sample.Metric["type"] {
		case "input":
			u.InputTokens = int64(sample.Value)
		case "output":
			u.OutputTokens = int64(sample.Value)
		}
	}

	requests, err := q.vector(ctx, `sum by (model) (boxonomics_model_requests_total)`)
	if err != nil {
		return nil, err
	}
	for _, sample := range requests {
		get(string(sample.Metric["model"])).Requests = int64(sample.Value)
	}
	return result, nil
}
