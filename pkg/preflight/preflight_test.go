package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/config"
)

func clearProviderEnv(t *testing.T) {
	for _, name := range []string{
		config.EnvAnthropicAPIKey, config.EnvOddsAPIKey, config.EnvNewsAPIKey,
		config.EnvRedditClientID, config.EnvRedditClientSecret,
	} {
		t.Setenv(name, "")
	}
	config.SetDecryptedSecrets(nil)
}

func findCheck(t *testing.T, results *Results, check Check) CheckResult {
	t.Helper()
	for _, c := range results.Checks {
		if c.Check == check {
			return c
		}
	}
	t.Fatalf("check %s not run", check)
	return CheckResult{}
}

func TestMissingModelKeyFails(t *testing.T) {
	clearProviderEnv(t)
	cfg := config.Default()
	cfg.Analytics.Path = filepath.Join(t.TempDir(), "missing.db")

	results, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, results.Passed)
	assert.False(t, findCheck(t, results, CheckModel).Passed)
	assert.False(t, findCheck(t, results, CheckAnalytics).Passed)
	assert.Contains(t, FormatResults(results), "[FAIL] model")
}

func TestOptionalProvidersOnlyWarn(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv(config.EnvAnthropicAPIKey, "sk-ant-test")
	dbPath := filepath.Join(t.TempDir(), "boxing.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	cfg := config.Default()
	cfg.Analytics.Path = dbPath

	results, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, results.Passed)
	odds := findCheck(t, results, CheckOdds)
	assert.False(t, odds.Passed)
	assert.False(t, odds.Required)
	assert.Contains(t, results.Summary, "3 optional")
	assert.Contains(t, FormatResults(results), "[WARN] social")
}

func TestOllamaReachability(t *testing.T) {
	clearProviderEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"0.16.2"}`))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Model.Name = "llama3.1"
	cfg.Model.Provider = config.ProviderOllama
	cfg.Model.BaseURL = srv.URL
	cfg.Providers = map[string]config.ProviderConfig{}

	results, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, results.Passed)
	assert.True(t, findCheck(t, results, CheckOllama).Passed)
}
