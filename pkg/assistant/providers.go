package assistant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/persistence"
	"boxonomics/pkg/providers/analytics"
	"boxonomics/pkg/providers/mcpclient"
	"boxonomics/pkg/providers/news"
	"boxonomics/pkg/providers/odds"
	"boxonomics/pkg/providers/social"
	"boxonomics/pkg/tools"
)

// ProviderOrder is the registration order of the built-in providers.
//
//nolint:gochecknoglobals // fixed registration order
var ProviderOrder = []string{
	config.ToolProviderAnalytics,
	config.ToolProviderOdds,
	config.ToolProviderNews,
	config.ToolProviderSocial,
}

// Builtin constructs one in-process provider by name. The analytics store is opened read-only;
// when it cannot be opened the provider still lists its tools and reports the problem per call.
func Builtin(ctx context.Context, name string, cfg *config.Config) (tools.Provider, func() error, error) {
	pc := cfg.Provider(name)
	switch name {
	case config.ToolProviderAnalytics:
		db, d, err := persistence.OpenAnalytics(ctx, cfg.Analytics, false)
		if err != nil {
			logx.NewLogger("assistant").Warn("Analytics store unavailable: %v", err)
			return analytics.New(nil, persistence.DialectSQLite), nil, nil
		}
		return analytics.New(db, d), db.Close, nil
	case config.ToolProviderOdds:
		return odds.New(odds.WithBaseURL(pc.BaseURL)), nil, nil
	case config.ToolProviderNews:
		return news.New(news.WithBaseURL(pc.BaseURL)), nil, nil
	case config.ToolProviderSocial:
		return social.New(social.WithBaseURL(pc.BaseURL)), nil, nil
	default:
		return nil, nil, &tools.ConfigurationError{Message: fmt.Sprintf("unknown builtin provider %q", name)}
	}
}

// BuildProviders creates every enabled provider: built-ins in ProviderOrder, then any extra
// MCP-only providers from config in name order. The returned closer releases all of them.
func BuildProviders(ctx context.Context, cfg *config.Config) ([]tools.Provider, func() error, error) {
	var (
		providers []tools.Provider
		closers   []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	names := append([]string{}, ProviderOrder...)
	var extra []string
	for name := range cfg.Providers {
		if !isBuiltin(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	for _, name := range names {
		pc := cfg.Provider(name)
		if !pc.IsEnabled() {
			continue
		}

		var (
			p      tools.Provider
			closer func() error
			err    error
		)
		if pc.Mode == config.ModeMCP || !isBuiltin(name) {
			var mp *mcpclient.Provider
			mp, err = mcpclient.Spawn(ctx, name, pc)
			if mp != nil {
				p, closer = mp, mp.Close
			}
		} else {
			p, closer, err = Builtin(ctx, name, cfg)
		}
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("failed to start provider %s: %w", name, err)
		}
		providers = append(providers, p)
		if closer != nil {
			closers = append(closers, closer)
		}
	}
	return providers, closeAll, nil
}

func isBuiltin(name string) bool {
	return slices.Contains(ProviderOrder, name)
}
