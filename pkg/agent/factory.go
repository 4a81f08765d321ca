package agent

import (
	"fmt"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	openaiopt "github.com/openai/openai-go/option"

	"boxonomics/pkg/agent/internal/llmimpl/anthropic"
	"boxonomics/pkg/agent/internal/llmimpl/google"
	"boxonomics/pkg/agent/internal/llmimpl/ollama"
	"boxonomics/pkg/agent/internal/llmimpl/openai"
	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/middleware/logging"
	"boxonomics/pkg/agent/middleware/metrics"
	"boxonomics/pkg/agent/middleware/validation"
	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
)

// Option customizes NewClient.
type Option func(*factoryOptions)

type factoryOptions struct {
	recorder metrics.Recorder
	logger   *logx.Logger
	apiKey   string
}

// WithRecorder reports every model request to r.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *factoryOptions) {
		o.recorder = r
	}
}

// WithLogger sets the logger used by the logging middleware.
func WithLogger(l *logx.Logger) Option {
	return func(o *factoryOptions) {
		o.logger = l
	}
}

// WithAPIKey bypasses the secrets lookup.
func WithAPIKey(key string) Option {
	return func(o *factoryOptions) {
		o.apiKey = key
	}
}

// NewClient creates the model endpoint described by cfg with the standard middleware chain:
//
//	Metrics -> Logging -> EmptyResponseValidation -> endpoint
//
// Endpoint errors are not retried here; a failed model call fails the run.
func NewClient(cfg config.ModelConfig, opts ...Option) (llm.LLMClient, error) {
	o := factoryOptions{
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("llm"),
	}
	for _, opt := range opts {
		opt(&o)
	}

	model := cfg.Name
	if model == "" {
		model = config.DefaultModel
	}
	provider := cfg.Provider
	if provider == "" {
		p, err := config.GetModelProvider(model)
		if err != nil {
			return nil, fmt.Errorf("failed to determine provider for model %s: %w", model, err)
		}
		provider = p
	}

	apiKey := o.apiKey
	if apiKey == "" {
		key, err := config.GetAPIKey(provider)
		if err != nil {
			return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
		}
		apiKey = key
	}

	raw, err := newRawClient(provider, model, apiKey, cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	return llm.Chain(raw,
		metrics.Middleware(o.recorder, nil),
		logging.Middleware(o.logger),
		validation.NewEmptyResponseValidator().Middleware(),
	), nil
}

func newRawClient(provider, model, apiKey, baseURL string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderAnthropic:
		var opts []anthropicopt.RequestOption
		if baseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(baseURL))
		}
		return anthropic.NewClaudeClientWithModel(apiKey, model, opts...), nil
	case config.ProviderOpenAI:
		var opts []openaiopt.RequestOption
		if baseURL != "" {
			opts = append(opts, openaiopt.WithBaseURL(baseURL))
		}
		return openai.NewClientWithModel(apiKey, model, opts...), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, model), nil
	case config.ProviderOllama:
		host := apiKey
		if baseURL != "" {
			host = baseURL
		}
		return ollama.NewOllamaClientWithModel(host, model), nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", provider)
	}
}
