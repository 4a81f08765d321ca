package agent

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/config"
)

type capturingRecorder struct {
	models  []string
	success []bool
	mu      sync.Mutex
}

func (r *capturingRecorder) ObserveModelRequest(model string, _, _ int, success bool, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
	r.success = append(r.success, success)
}

func TestNewClientSelectsProvider(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.ModelConfig
		model string
	}{
		{"anthropic by prefix", config.ModelConfig{Name: "claude-sonnet-4-20250514"}, "claude-sonnet-4-20250514"},
		{"openai by prefix", config.ModelConfig{Name: "gpt-4o"}, "gpt-4o"},
		{"google by prefix", config.ModelConfig{Name: "gemini-2.5-flash"}, "gemini-2.5-flash"},
		{"explicit provider", config.ModelConfig{Provider: config.ProviderOllama, Name: "llama3.1"}, "llama3.1"},
		{"default model", config.ModelConfig{}, config.DefaultModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, WithAPIKey("test-key"))
			require.NoError(t, err)
			assert.Equal(t, tt.model, client.GetModelName())
		})
	}
}

func TestNewClientUnknownModel(t *testing.T) {
	_, err := NewClient(config.ModelConfig{Name: "mystery-9000"}, WithAPIKey("k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to determine provider")
}

func TestNewClientUnsupportedProvider(t *testing.T) {
	_, err := NewClient(config.ModelConfig{Provider: "bedrock", Name: "x"}, WithAPIKey("k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported model provider")
}

func TestNewClientMissingKey(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "")
	_, err := NewClient(config.ModelConfig{Name: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get API key")
}

func TestNewClientChainsRecorder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "llama3.1",
			"created_at": "2025-01-01T00:00:00Z",
			"message": {"role": "assistant", "content": "Crawford by decision."},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 12,
			"eval_count": 5
		}`)
	}))
	defer srv.Close()

	rec := &capturingRecorder{}
	client, err := NewClient(
		config.ModelConfig{Provider: config.ProviderOllama, Name: "llama3.1", BaseURL: srv.URL},
		WithRecorder(rec),
	)
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Who wins?")}))
	require.NoError(t, err)
	assert.Equal(t, "Crawford by decision.", resp.Content)
	assert.Equal(t, []string{"llama3.1"}, rec.models)
	assert.Equal(t, []bool{true}, rec.success)
}
