package preflight

import (
	"fmt"
	"strings"
)

// FormatResults formats all preflight results for display.
func FormatResults(results *Results) string {
	var sb strings.Builder
	sb.WriteString(results.Summary)
	sb.WriteString("\n")
	for i := range results.Checks {
		check := &results.Checks[i]
		switch {
		case check.Passed:
			sb.WriteString(fmt.Sprintf("  [PASS] %s: %s\n", check.Check, check.Message))
		case check.Required:
			sb.WriteString(fmt.Sprintf("  [FAIL] %s: %s\n    %s\n", check.Check, check.Message, getGuidance(check.Check)))
		default:
			sb.WriteString(fmt.Sprintf("  [WARN] %s: %s\n    %s\n", check.Check, check.Message, getGuidance(check.Check)))
		}
	}
	return sb.String()
}

// getGuidance returns actionable guidance for fixing a failed check.
func getGuidance(check Check) string {
	switch check {
	case CheckModel:
		return "Export the model API key or store it with: boxonomics secrets set <NAME>"
	case CheckOllama:
		return "Start Ollama (ollama serve) or set OLLAMA_HOST: https://ollama.com/download"
	case CheckAnalytics:
		return "Create and seed the database with: boxonomics init-db --seed <fixture.yaml>"
	case CheckOdds:
		return "Get a key at https://the-odds-api.com and set ODDS_API_KEY"
	case CheckNews:
		return "Get a key at https://newsapi.org and set NEWS_API_KEY"
	case CheckSocial:
		return "Create a Reddit script app at https://www.reddit.com/prefs/apps and set REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET"
	default:
		return "Check the configuration"
	}
}
