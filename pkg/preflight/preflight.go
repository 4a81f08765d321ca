// Package preflight validates, before startup, that the configured model endpoint and tool
// providers have the credentials and data they need.
package preflight

import (
	"context"
	"fmt"
	"sort"

	"boxonomics/pkg/config"
)

// Check identifies one preflight check.
type Check string

// Checks run by Run.
const (
	CheckModel     Check = "model"
	CheckOllama    Check = "ollama"
	CheckAnalytics Check = "analytics"
	CheckOdds      Check = "odds"
	CheckNews      Check = "news"
	CheckSocial    Check = "social"
)

// CheckResult represents the outcome of a single preflight check.
// Optional checks never fail the run; the matching provider degrades to fallback data.
type CheckResult struct {
	Error    error
	Message  string
	Check    Check
	Passed   bool
	Required bool
}

// Results contains all preflight check results.
type Results struct {
	Summary string
	Checks  []CheckResult
	Passed  bool
}

// Run executes every check that applies to cfg. The error is reserved for checks that cannot run at all.
func Run(ctx context.Context, cfg *config.Config) (*Results, error) {
	if cfg == nil {
		return nil, fmt.Errorf("preflight requires a config")
	}

	var checks []CheckResult
	if cfg.Model.Provider == config.ProviderOllama {
		checks = append(checks, checkOllama(ctx, cfg))
	} else {
		checks = append(checks, checkModelKey(cfg))
	}

	for _, name := range sortedProviders(cfg) {
		p := cfg.Provider(name)
		if !p.IsEnabled() || p.Mode != config.ModeBuiltin {
			continue
		}
		switch name {
		case config.ToolProviderAnalytics:
			checks = append(checks, checkAnalytics(cfg))
		case config.ToolProviderOdds:
			checks = append(checks, checkSecrets(CheckOdds, config.EnvOddsAPIKey))
		case config.ToolProviderNews:
			checks = append(checks, checkSecrets(CheckNews, config.EnvNewsAPIKey))
		case config.ToolProviderSocial:
			checks = append(checks, checkSecrets(CheckSocial, config.EnvRedditClientID, config.EnvRedditClientSecret))
		}
	}

	results := &Results{Checks: checks, Passed: true}
	failedRequired, failedOptional := 0, 0
	for i := range checks {
		if checks[i].Passed {
			continue
		}
		if checks[i].Required {
			results.Passed = false
			failedRequired++
		} else {
			failedOptional++
		}
	}

	switch {
	case !results.Passed:
		results.Summary = fmt.Sprintf("%d of %d required preflight checks failed", failedRequired, countRequired(checks))
	case failedOptional > 0:
		results.Summary = fmt.Sprintf("Required checks passed; %d optional data sources unavailable", failedOptional)
	default:
		results.Summary = fmt.Sprintf("All %d preflight checks passed", len(checks))
	}
	return results, nil
}

func sortedProviders(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func countRequired(checks []CheckResult) int {
	n := 0
	for i := range checks {
		if checks[i].Required {
			n++
		}
	}
	return n
}
