// Package config provides configuration loading, validation, secrets and pre-flight checks.
//
// Configuration is a YAML file (default boxonomics.yaml) with ${VAR} substitution, followed by
// BOXONOMICS_* environment overrides, defaults and validation. Secrets are never stored in the
// config file: GetSecret resolves them from the encrypted secrets file, then the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"boxonomics/pkg/logx"
)

// Model provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Tool provider names.
const (
	ToolProviderAnalytics = "analytics"
	ToolProviderOdds      = "odds"
	ToolProviderNews      = "news"
	ToolProviderSocial    = "social"
)

// Tool provider modes.
const (
	ModeBuiltin = "builtin"
	ModeMCP     = "mcp"
)

// Analytics drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Secret and environment variable names.
const (
	EnvAnthropicAPIKey    = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey       = "OPENAI_API_KEY"
	EnvGoogleAPIKey       = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost         = "OLLAMA_HOST"
	EnvOddsAPIKey         = "ODDS_API_KEY"
	EnvNewsAPIKey         = "NEWS_API_KEY"
	EnvRedditClientID     = "REDDIT_CLIENT_ID"
	EnvRedditClientSecret = "REDDIT_CLIENT_SECRET"
	EnvRedditUserAgent    = "REDDIT_USER_AGENT"
)

// Defaults.
const (
	DefaultConfigFile           = "boxonomics.yaml"
	DefaultModel                = "claude-sonnet-4-20250514"
	DefaultMaxTokens            = 4096
	DefaultMaxIterations        = 10
	DefaultListen               = ":8080"
	DefaultMaxConcurrentQueries = 8
	DefaultDBPath               = "boxing_data.db"
	DefaultHistoryPath          = "boxonomics_history.db"
	DefaultServiceName          = "boxonomics"
	DefaultOllamaHost           = "http://localhost:11434"
	DefaultRedditUserAgent      = "boxing-mcp-server/1.0"
)

// DefaultSystemPrompt frames the assistant for the orchestration loop.
const DefaultSystemPrompt = `You are an expert boxing analyst with access to fighter statistics, betting odds, ` +
	`recent news and Reddit community sentiment. Use the available tools to gather data before answering. ` +
	`Cite the numbers you used, say when a data source was unavailable, and keep answers concise.`

//nolint:gochecknoglobals // package logger
var logger = logx.NewLogger("config")

// ModelConfig selects the model endpoint.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// LoopConfig bounds the orchestration loop.
type LoopConfig struct {
	SystemPrompt  string `yaml:"system_prompt"`
	MaxIterations int    `yaml:"max_iterations"`
}

// RetryConfig mirrors the retry policy.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// BreakerConfig mirrors the circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// TimeoutConfig sets per-attempt deadlines. Provider overrides live on ProviderConfig.Timeout.
type TimeoutConfig struct {
	PerTool map[string]time.Duration `yaml:"per_tool"`
	Default time.Duration            `yaml:"default"`
}

// RateLimitConfig is a per-provider request budget. Zero means unlimited.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	MaxConcurrency    int `yaml:"max_concurrency"`
}

// ResilienceConfig configures the middleware around provider calls.
type ResilienceConfig struct {
	RateLimits      map[string]RateLimitConfig `yaml:"ratelimit"`
	Timeout         TimeoutConfig              `yaml:"timeout"`
	Retry           RetryConfig                `yaml:"retry"`
	Breaker         BreakerConfig              `yaml:"breaker"`
	DisableFallback bool                       `yaml:"disable_fallback"`
}

// ProviderConfig configures one tool provider.
type ProviderConfig struct {
	Enabled  *bool         `yaml:"enabled"`
	Mode     string        `yaml:"mode"`
	Command  string        `yaml:"command"`
	Args     []string      `yaml:"args"`
	Category string        `yaml:"category"`
	BaseURL  string        `yaml:"base_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the provider should be registered. Providers are enabled unless disabled explicitly.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// AnalyticsConfig selects the analytics store.
type AnalyticsConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen               string   `yaml:"listen"`
	CORSOrigins          []string `yaml:"cors_origins"`
	MaxConcurrentQueries int      `yaml:"max_concurrent_queries"`
}

// TelemetryConfig configures OpenTelemetry export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// PersistenceConfig configures the run history archive.
type PersistenceConfig struct {
	HistoryPath string `yaml:"history_path"`
	Disabled    bool   `yaml:"disabled"`
}

// Config is the root configuration.
type Config struct {
	Providers   map[string]ProviderConfig `yaml:"providers"`
	Model       ModelConfig               `yaml:"model"`
	Loop        LoopConfig                `yaml:"loop"`
	Resilience  ResilienceConfig          `yaml:"resilience"`
	Analytics   AnalyticsConfig           `yaml:"analytics"`
	Server      ServerConfig              `yaml:"server"`
	Telemetry   TelemetryConfig           `yaml:"telemetry"`
	Persistence PersistenceConfig         `yaml:"persistence"`
	LogLevel    string                    `yaml:"log_level"`
	LogFile     string                    `yaml:"log_file"`
}

// Provider returns the configuration for a tool provider, defaulting to an enabled builtin.
func (c *Config) Provider(name string) ProviderConfig {
	if p, ok := c.Providers[name]; ok {
		return p
	}
	return ProviderConfig{Mode: ModeBuiltin, Category: name}
}

// ProviderPattern maps a model name prefix to its provider.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns infer the endpoint provider from a model name when model.provider is unset.
//
//nolint:gochecknoglobals // static inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"phi", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the endpoint provider for a model name.
func GetModelProvider(modelName string) (string, error) {
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no provider pattern match, set model.provider explicitly", modelName)
}

// APIKeyEnv returns the secret name holding the key for a model provider. Ollama has none.
func APIKeyEnv(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderGoogle:
		return EnvGoogleAPIKey
	default:
		return ""
	}
}

// GetAPIKey returns the API key for a model provider. For Ollama it returns the host URL.
func GetAPIKey(provider string) (string, error) {
	if provider == ProviderOllama {
		if host := os.Getenv(EnvOllamaHost); host != "" {
			return host, nil
		}
		return DefaultOllamaHost, nil
	}
	envVar := APIKeyEnv(provider)
	if envVar == "" {
		return "", fmt.Errorf("unknown provider: %s", provider)
	}
	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("API key not found: %w", err)
	}
	return key, nil
}

const (
	defaultInitialDelay    = time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultRecoveryTimeout = 60 * time.Second
	defaultToolTimeout     = 30 * time.Second
)
