package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boxonomics.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultModel, cfg.Model.Name)
	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Zero(t, cfg.Model.Temperature)
	assert.Equal(t, 10, cfg.Loop.MaxIterations)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Resilience.Retry.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Resilience.Retry.MaxDelay)
	assert.Equal(t, 5, cfg.Resilience.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Breaker.RecoveryTimeout)
	assert.Equal(t, 30*time.Second, cfg.Resilience.Timeout.Default)
	assert.Len(t, cfg.Providers, 4)
	assert.Equal(t, ModeBuiltin, cfg.Provider(ToolProviderOdds).Mode)
	assert.Equal(t, DefaultDBPath, cfg.Analytics.Path)
	require.NoError(t, validateConfig(cfg))
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("BOXING_DB", "/data/boxing.db")
	path := writeConfig(t, `
model:
  name: gpt-4o
  temperature: 0.2
loop:
  max_iterations: 6
resilience:
  retry:
    max_attempts: 4
    initial_delay: 500ms
  timeout:
    per_tool:
      get_fight_odds: 10s
analytics:
  path: ${BOXING_DB}
providers:
  social:
    enabled: false
  odds:
    mode: mcp
    command: boxonomics
    args: [serve-tools, odds]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.InDelta(t, 0.2, cfg.Model.Temperature, 1e-6)
	assert.Equal(t, 6, cfg.Loop.MaxIterations)
	assert.Equal(t, 4, cfg.Resilience.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Resilience.Timeout.PerTool["get_fight_odds"])
	assert.Equal(t, "/data/boxing.db", cfg.Analytics.Path)

	social := cfg.Provider(ToolProviderSocial)
	assert.False(t, social.IsEnabled())
	assert.Equal(t, ToolProviderSocial, social.Category)
	odds := cfg.Provider(ToolProviderOdds)
	assert.Equal(t, ModeMCP, odds.Mode)
	assert.Equal(t, []string{"serve-tools", "odds"}, odds.Args)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOXONOMICS_MODEL", "gemini-2.5-flash")
	t.Setenv("BOXONOMICS_MAX_ITERATIONS", "3")
	t.Setenv("BOXONOMICS_LISTEN", "127.0.0.1:9090")
	t.Setenv("BOXONOMICS_DB_PATH", "/tmp/x.db")

	cfg, err := Load(writeConfig(t, "model:\n  name: claude-sonnet-4-20250514\n  provider: anthropic\n"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", cfg.Model.Name)
	assert.Equal(t, ProviderGoogle, cfg.Model.Provider)
	assert.Equal(t, 3, cfg.Loop.MaxIterations)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "/tmp/x.db", cfg.Analytics.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model.Name)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown model", "model:\n  name: mystery-1\n", "could not be inferred"},
		{"bad temperature", "model:\n  temperature: 3\n", "temperature"},
		{"mcp without command", "providers:\n  news:\n    mode: mcp\n", "requires a command"},
		{"postgres without dsn", "analytics:\n  driver: postgres\n", "analytics.dsn"},
		{"bad mode", "providers:\n  odds:\n    mode: carrier-pigeon\n", "unsupported mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetModelProvider(t *testing.T) {
	for model, want := range map[string]string{
		"claude-sonnet-4-20250514": ProviderAnthropic,
		"gpt-4o":                   ProviderOpenAI,
		"o3-mini":                  ProviderOpenAI,
		"gemini-2.5-pro":           ProviderGoogle,
		"llama3.1:8b":              ProviderOllama,
	} {
		got, err := GetModelProvider(model)
		require.NoError(t, err, model)
		assert.Equal(t, want, got, model)
	}
	_, err := GetModelProvider("unknown")
	require.Error(t, err)
}
