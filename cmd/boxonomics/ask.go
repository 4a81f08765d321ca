package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"boxonomics/pkg/agent/toolloop"
	"boxonomics/pkg/assistant"
)

type askCommander struct {
	global      *globalOptions
	demo        bool
	plain       bool
	showTrace   bool
	showMetrics bool
}

func newAskCmd(global *globalOptions) *cobra.Command {
	cmder := &askCommander{global: global}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question",
		Long: `Answer one question using the configured model and tool providers.

Examples:
  boxonomics ask "What are Tyson Fury's career stats?"
  boxonomics ask --demo`,
		Args: func(_ *cobra.Command, args []string) error {
			if !cmder.demo && len(args) == 0 {
				return errors.New("a question is required unless --demo is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := assistant.DemoQueries
			if !cmder.demo {
				queries = []string{strings.Join(args, " ")}
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), queries)
		},
	}

	cmd.Flags().BoolVar(&cmder.demo, "demo", false, "Run the built-in demo queries")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print answers without markdown rendering")
	cmd.Flags().BoolVar(&cmder.showTrace, "trace", false, "Print the tool calls made for each answer")
	cmd.Flags().BoolVar(&cmder.showMetrics, "metrics", false, "Print Prometheus metrics after the summary")

	return cmd
}

func (c *askCommander) run(ctx context.Context, out io.Writer, queries []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := runPreflight(ctx, env.cfg, os.Stderr, false); err != nil {
		return err
	}

	a, err := assistant.New(ctx, env.cfg)
	if err != nil {
		return fmt.Errorf("failed to start assistant: %w", err)
	}
	defer func() { _ = a.Close() }()

	r := newRenderer(c.plain)
	var failed int
	for i, query := range queries {
		if len(queries) > 1 {
			fmt.Fprintf(out, "\n🥊 Query %d/%d: %s\n", i+1, len(queries), query)
		}
		result, err := a.Ask(ctx, query)
		if err != nil {
			failed++
			fmt.Fprintf(out, "❌ %s: %v\n", toolloop.ErrorKind(err), err)
			if errors.Is(err, context.Canceled) {
				break
			}
			continue
		}
		fmt.Fprint(out, r.Render(result.Answer))
		if c.showTrace {
			printTrace(out, result)
		}
	}

	fmt.Fprint(out, a.Monitor.Summary())
	if c.showMetrics {
		if err := a.Recorder.WriteText(out); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	if failed == len(queries) {
		return errors.New("no query succeeded")
	}
	return nil
}

func printTrace(out io.Writer, result *toolloop.RunResult) {
	fmt.Fprintf(out, "🔎 %d iterations, %d tool calls, %s\n",
		result.Iterations, len(result.Trace), result.Elapsed.Round(time.Millisecond))
	for _, tc := range result.Trace {
		fmt.Fprintf(out, "   %-28s %-10s %-12s %.0fms\n", tc.ToolName, tc.ProviderName, tc.Outcome, tc.DurationMs)
	}
}
