package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the YAML config at path with ${VAR} substitution, then applies environment
// overrides and defaults and validates the result. An empty path means DefaultConfigFile,
// which may be absent.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		logger.Debug("no %s found, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg after substituting ${VAR} references. Unset variables are left verbatim.
func Parse(data []byte, cfg *Config) error {
	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOXONOMICS_MODEL"); v != "" {
		cfg.Model.Name = v
		cfg.Model.Provider = ""
	}
	if v := os.Getenv("BOXONOMICS_DB_PATH"); v != "" {
		cfg.Analytics.Path = v
	}
	if v := os.Getenv("BOXONOMICS_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("BOXONOMICS_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Loop.MaxIterations = n
		} else {
			logger.Warn("ignoring BOXONOMICS_MAX_ITERATIONS=%q: %v", v, err)
		}
	}
	if v := os.Getenv("BOXONOMICS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = DefaultModel
	}
	if cfg.Model.Provider == "" {
		if provider, err := GetModelProvider(cfg.Model.Name); err == nil {
			cfg.Model.Provider = provider
		}
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = DefaultMaxTokens
	}

	if cfg.Loop.MaxIterations == 0 {
		cfg.Loop.MaxIterations = DefaultMaxIterations
	}
	if cfg.Loop.SystemPrompt == "" {
		cfg.Loop.SystemPrompt = DefaultSystemPrompt
	}

	r := &cfg.Resilience
	if r.Retry.MaxAttempts == 0 {
		r.Retry.MaxAttempts = 3
	}
	if r.Retry.InitialDelay == 0 {
		r.Retry.InitialDelay = defaultInitialDelay
	}
	if r.Retry.MaxDelay == 0 {
		r.Retry.MaxDelay = defaultMaxDelay
	}
	if r.Retry.BackoffFactor == 0 {
		r.Retry.BackoffFactor = 2.0
	}
	if r.Breaker.FailureThreshold == 0 {
		r.Breaker.FailureThreshold = 5
	}
	if r.Breaker.SuccessThreshold == 0 {
		r.Breaker.SuccessThreshold = 2
	}
	if r.Breaker.RecoveryTimeout == 0 {
		r.Breaker.RecoveryTimeout = defaultRecoveryTimeout
	}
	if r.Timeout.Default == 0 {
		r.Timeout.Default = defaultToolTimeout
	}
	if r.RateLimits == nil {
		r.RateLimits = map[string]RateLimitConfig{
			ToolProviderSocial: {RequestsPerMinute: 60, MaxConcurrency: 2},
			ToolProviderNews:   {RequestsPerMinute: 100, MaxConcurrency: 4},
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for _, name := range []string{ToolProviderAnalytics, ToolProviderOdds, ToolProviderNews, ToolProviderSocial} {
		if _, ok := cfg.Providers[name]; !ok {
			cfg.Providers[name] = ProviderConfig{}
		}
	}
	for name, p := range cfg.Providers {
		if p.Mode == "" {
			p.Mode = ModeBuiltin
		}
		if p.Category == "" {
			p.Category = name
		}
		cfg.Providers[name] = p
	}

	if cfg.Analytics.Driver == "" {
		cfg.Analytics.Driver = DriverSQLite
	}
	if cfg.Analytics.Driver == DriverSQLite && cfg.Analytics.Path == "" && cfg.Analytics.DSN == "" {
		cfg.Analytics.Path = DefaultDBPath
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.MaxConcurrentQueries == 0 {
		cfg.Server.MaxConcurrentQueries = DefaultMaxConcurrentQueries
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Persistence.HistoryPath == "" {
		cfg.Persistence.HistoryPath = DefaultHistoryPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

// validateConfig rejects configurations that cannot run.
func validateConfig(cfg *Config) error {
	var errs []error

	switch cfg.Model.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama:
	case "":
		errs = append(errs, fmt.Errorf("model.provider could not be inferred from model %q", cfg.Model.Name))
	default:
		errs = append(errs, fmt.Errorf("unsupported model.provider %q", cfg.Model.Provider))
	}
	if cfg.Model.Temperature < 0 || cfg.Model.Temperature > 2 {
		errs = append(errs, fmt.Errorf("model.temperature must be between 0 and 2, got %v", cfg.Model.Temperature))
	}
	if cfg.Model.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("model.max_tokens must be positive"))
	}
	if cfg.Loop.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("loop.max_iterations must be at least 1, got %d", cfg.Loop.MaxIterations))
	}

	r := &cfg.Resilience
	if r.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("resilience.retry.max_attempts must be at least 1"))
	}
	if r.Retry.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("resilience.retry.backoff_factor must be >= 1"))
	}
	if r.Retry.MaxDelay < r.Retry.InitialDelay {
		errs = append(errs, fmt.Errorf("resilience.retry.max_delay must be >= initial_delay"))
	}
	if r.Breaker.FailureThreshold < 1 || r.Breaker.SuccessThreshold < 1 {
		errs = append(errs, fmt.Errorf("resilience.breaker thresholds must be at least 1"))
	}

	for name, p := range cfg.Providers {
		switch p.Mode {
		case ModeBuiltin:
		case ModeMCP:
			if p.Command == "" {
				errs = append(errs, fmt.Errorf("providers.%s: mode mcp requires a command", name))
			}
		default:
			errs = append(errs, fmt.Errorf("providers.%s: unsupported mode %q", name, p.Mode))
		}
	}

	switch cfg.Analytics.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.Analytics.DSN == "" {
			errs = append(errs, fmt.Errorf("analytics.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported analytics.driver %q", cfg.Analytics.Driver))
	}

	if cfg.Server.MaxConcurrentQueries < 1 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_queries must be at least 1"))
	}

	return errors.Join(errs...)
}
