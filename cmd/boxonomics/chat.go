package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"boxonomics/pkg/agent/toolloop"
	"boxonomics/pkg/assistant"
)

type chatCommander struct {
	global *globalOptions
	plain  bool
}

func newChatCmd(global *globalOptions) *cobra.Command {
	cmder := &chatCommander{global: global}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive question session",
		Long: `Start an interactive session. Each line is answered independently.

Commands inside the session:
  stats    Print the performance summary
  reset    Reset the statistics
  quit     Exit (also: exit, q, Ctrl-D)`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print answers without markdown rendering")
	return cmd
}

func (c *chatCommander) run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
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

	fmt.Fprintf(out, "🥊 boxonomics chat (%s, %d tools)\n", a.Model(), a.Registry.Len())
	fmt.Fprintln(out, "Try:")
	for _, q := range assistant.ExampleQueries {
		fmt.Fprintf(out, "  • %s\n", q)
	}
	fmt.Fprintln(out)

	r := newRenderer(c.plain)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit", "q":
			fmt.Fprint(out, a.Monitor.Summary())
			return nil
		case "stats":
			fmt.Fprint(out, a.Monitor.Summary())
			continue
		case "reset":
			a.Monitor.Reset()
			fmt.Fprintln(out, "Statistics reset.")
			continue
		}

		// Ctrl-C cancels the current answer, not the session.
		queryCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		result, err := a.Ask(queryCtx, line)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "❌ %s: %v\n", toolloop.ErrorKind(err), err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Fprint(out, r.Render(result.Answer))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	fmt.Fprint(out, a.Monitor.Summary())
	return nil
}
