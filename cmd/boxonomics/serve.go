package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"boxonomics/pkg/assistant"
	"boxonomics/pkg/webui"
)

type serveCommander struct {
	global *globalOptions
	listen string
}

func newServeCmd(global *globalOptions) *cobra.Command {
	cmder := &serveCommander{global: global}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

  POST /api/query          {"query": "..."}
  GET  /api/stats          Monitor statistics (POST /api/stats/reset to clear)
  GET  /api/tools          Tools grouped by provider
  GET  /api/runs?limit=N   Recent archived runs
  GET  /metrics            Prometheus metrics
  GET  /health`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Listen address (overrides server.listen)")
	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()
	if c.listen != "" {
		env.cfg.Server.Listen = c.listen
	}

	if err := runPreflight(ctx, env.cfg, os.Stderr, true); err != nil {
		return err
	}

	a, err := assistant.New(ctx, env.cfg)
	if err != nil {
		return fmt.Errorf("failed to start assistant: %w", err)
	}
	defer func() { _ = a.Close() }()

	return webui.NewServer(a, env.cfg.Server).ListenAndServe(ctx) //nolint:wrapcheck // webui adds context
}
