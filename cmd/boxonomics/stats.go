package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"boxonomics/pkg/metrics"
	"boxonomics/pkg/persistence"
)

type statsCommander struct {
	global        *globalOptions
	prometheusURL string
	limit         int
}

func newStatsCmd(global *globalOptions) *cobra.Command {
	cmder := &statsCommander{global: global}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize archived runs or fleet metrics",
		Long: `Summarize recent archived runs from the history database.

With --prometheus, read fleet-wide totals from a Prometheus server that scrapes
one or more "boxonomics serve" instances instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.prometheusURL != "" {
				return cmder.runPrometheus(cmd.Context(), cmd.OutOrStdout())
			}
			return cmder.runHistory(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 100, "Number of recent runs to summarize")
	cmd.Flags().StringVar(&cmder.prometheusURL, "prometheus", "", "Prometheus server URL")
	return cmd
}

func (c *statsCommander) runHistory(ctx context.Context, out io.Writer) error {
	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()

	store, err := persistence.OpenHistory(ctx, env.cfg.Persistence.HistoryPath)
	if err != nil {
		return err //nolint:wrapcheck // persistence names the file
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(ctx, c.limit)
	if err != nil {
		return err //nolint:wrapcheck // persistence adds context
	}
	writeHistorySummary(out, summarizeRuns(runs))
	return nil
}

// historySummary aggregates archived runs.
type historySummary struct {
	Failures      map[string]int
	Tools         map[string]map[string]int
	Runs          int
	ToolCalls     int
	AvgIterations float64
	AvgElapsedMs  float64
}

func summarizeRuns(runs []*persistence.RunRecord) historySummary {
	s := historySummary{
		Failures: map[string]int{},
		Tools:    map[string]map[string]int{},
		Runs:     len(runs),
	}
	if len(runs) == 0 {
		return s
	}
	var iterations, elapsed int64
	for _, run := range runs {
		iterations += int64(run.Iterations)
		elapsed += run.ElapsedMs
		if run.ErrorKind != "" {
			s.Failures[run.ErrorKind]++
		}
		for _, call := range run.ToolCalls {
			s.ToolCalls++
			outcomes, ok := s.Tools[call.ToolName]
			if !ok {
				outcomes = map[string]int{}
				s.Tools[call.ToolName] = outcomes
			}
			outcomes[call.Outcome]++
		}
	}
	s.AvgIterations = float64(iterations) / float64(len(runs))
	s.AvgElapsedMs = float64(elapsed) / float64(len(runs))
	return s
}

func writeHistorySummary(out io.Writer, s historySummary) {
	fmt.Fprintf(out, "📊 %d runs, %d tool calls, %.1f iterations and %.0fms per run\n",
		s.Runs, s.ToolCalls, s.AvgIterations, s.AvgElapsedMs)
	if len(s.Failures) > 0 {
		kinds := make([]string, 0, len(s.Failures))
		for kind := range s.Failures {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Fprintf(out, "❌ %s: %d\n", kind, s.Failures[kind])
		}
	}
	if len(s.Tools) == 0 {
		return
	}

	names := make([]string, 0, len(s.Tools))
	for name := range s.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTOOL\tSUCCESS\tFALLBACK\tERROR")
	for _, name := range names {
		o := s.Tools[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", name,
			o[metrics.OutcomeSuccess], o[metrics.OutcomeFallback], o[metrics.OutcomeError]+o[metrics.OutcomeUnknownTool])
	}
	_ = tw.Flush()
}

func (c *statsCommander) runPrometheus(ctx context.Context, out io.Writer) error {
	q, err := metrics.NewQueryService(c.prometheusURL)
	if err != nil {
		return err //nolint:wrapcheck // metrics adds context
	}

	queries, err := q.QueriesTotal(ctx)
	if err != nil {
		return err //nolint:wrapcheck // metrics adds context
	}
	totals, err := q.ToolCallTotals(ctx)
	if err != nil {
		return err //nolint:wrapcheck // metrics adds context
	}
	usage, err := q.ModelUsageByModel(ctx)
	if err != nil {
		return err //nolint:wrapcheck // metrics adds context
	}

	fmt.Fprintf(out, "📊 %d queries across the fleet\n", queries)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nTOOL\tPROVIDER\tCALLS\tFALLBACK")
	for _, t := range totals {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", t.Tool, t.Provider, t.Calls, t.Outcomes[metrics.OutcomeFallback])
	}
	fmt.Fprintln(tw, "\nMODEL\tREQUESTS\tINPUT\tOUTPUT")
	models := make([]string, 0, len(usage))
	for name := range usage {
		models = append(models, name)
	}
	sort.Strings(models)
	for _, name := range models {
		u := usage[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", u.Model, u.Requests, u.InputTokens, u.OutputTokens)
	}
	return tw.Flush() //nolint:wrapcheck // terminal write
}
