package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"boxonomics/pkg/persistence"
)

type initDBCommander struct {
	global *globalOptions
	seed   string
	sample bool
}

func newInitDBCmd(global *globalOptions) *cobra.Command {
	cmder := &initDBCommander{global: global}

	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the analytics schema and optionally seed it",
		Long: `Create the fighters, fights and titles tables in the configured analytics store.

Seed fixtures are YAML with fighters, fights and titles lists. Dates may be
relative to today ("+30d") so upcoming fights stay upcoming.

  boxonomics init-db --sample
  boxonomics init-db --seed fixtures/heavyweights.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.sample && cmder.seed != "" {
				return errors.New("--sample and --seed are mutually exclusive")
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cmder.seed, "seed", "", "YAML fixture to import")
	cmd.Flags().BoolVar(&cmder.sample, "sample", false, "Import the built-in sample data set")
	return cmd
}

func (c *initDBCommander) run(ctx context.Context, out io.Writer) error {
	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()

	db, d, err := persistence.OpenAnalytics(ctx, env.cfg.Analytics, true)
	if err != nil {
		return err //nolint:wrapcheck // persistence names the store
	}
	defer func() { _ = db.Close() }()

	if err := persistence.InitializeAnalyticsSchema(ctx, db, d); err != nil {
		return err //nolint:wrapcheck // persistence adds context
	}
	fmt.Fprintf(out, "✅ Analytics schema ready (%s)\n", d)

	var fx *persistence.Fixture
	switch {
	case c.sample:
		fx = persistence.SampleFixture()
	case c.seed != "":
		if fx, err = persistence.LoadFixture(c.seed); err != nil {
			return err //nolint:wrapcheck // persistence names the file
		}
	default:
		return nil
	}

	stats, err := persistence.Seed(ctx, db, d, fx, time.Now())
	if err != nil {
		return err //nolint:wrapcheck // persistence adds context
	}
	fmt.Fprintf(out, "🌱 Seeded %d fighters, %d fights, %d titles\n", stats.Fighters, stats.Fights, stats.Titles)
	return nil
}
