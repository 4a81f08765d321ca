package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"boxonomics/pkg/config"
)

// checkModelKey verifies the API key for the configured model provider.
func checkModelKey(cfg *config.Config) CheckResult {
	result := CheckResult{Check: CheckModel, Required: true}
	envVar := config.APIKeyEnv(cfg.Model.Provider)
	if _, err := config.GetSecret(envVar); err != nil {
		result.Message = fmt.Sprintf("%s is not set (required for %s)", envVar, cfg.Model.Name)
		result.Error = err
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%s available for %s", envVar, cfg.Model.Name)
	return result
}

// checkOllama verifies the Ollama server answers.
func checkOllama(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{Check: CheckOllama, Required: true}
	host := cfg.Model.BaseURL
	if host == "" {
		host, _ = config.GetAPIKey(config.ProviderOllama)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/version", http.NoBody)
	if err != nil {
		result.Message = fmt.Sprintf("invalid Ollama host %q", host)
		result.Error = err
		return result
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Message = fmt.Sprintf("Ollama is not reachable at %s", host)
		result.Error = err
		return result
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		result.Message = fmt.Sprintf("Ollama at %s returned %d", host, resp.StatusCode)
		result.Error = fmt.Errorf("unexpected status %d", resp.StatusCode)
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("Ollama reachable at %s", host)
	return result
}

// checkAnalytics verifies the SQLite analytics database file exists.
func checkAnalytics(cfg *config.Config) CheckResult {
	result := CheckResult{Check: CheckAnalytics, Required: true}
	if cfg.Analytics.Driver == config.DriverPostgres {
		result.Passed = true
		result.Message = "PostgreSQL analytics store configured"
		return result
	}
	path := cfg.Analytics.Path
	if path == "" {
		result.Passed = true
		result.Message = "SQLite DSN configured"
		return result
	}
	if _, err := os.Stat(path); err != nil {
		result.Message = fmt.Sprintf("analytics database %s not found", path)
		result.Error = err
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("analytics database %s found", path)
	return result
}

// checkSecrets verifies optional provider credentials.
func checkSecrets(check Check, names ...string) CheckResult {
	result := CheckResult{Check: check}
	var missing []string
	for _, name := range names {
		if _, err := config.GetSecret(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		result.Message = fmt.Sprintf("%s not set, %s tools will return fallback data", strings.Join(missing, ", "), check)
		result.Error = fmt.Errorf("missing %s", strings.Join(missing, ", "))
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%s credentials available", check)
	return result
}
