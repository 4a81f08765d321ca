package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"boxonomics/pkg/assistant"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/mcpserve"
)

type serveToolsCommander struct {
	global   *globalOptions
	httpAddr string
}

func newServeToolsCmd(global *globalOptions) *cobra.Command {
	cmder := &serveToolsCommander{global: global}

	cmd := &cobra.Command{
		Use:       "serve-tools <provider>",
		Short:     "Expose one tool provider as an MCP server",
		ValidArgs: assistant.ProviderOrder,
		Long: `Expose one built-in provider (analytics, odds, news or social) as an MCP server.

Over stdio (the default) stdout carries only the MCP protocol and logs go to stderr.
With --http the server speaks streamable HTTP on the given address.

  boxonomics serve-tools odds
  boxonomics serve-tools social --http :8090`,
		Args: cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&cmder.httpAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	return cmd
}

func (c *serveToolsCommander) run(ctx context.Context, name string) error {
	logx.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()

	p, closeProvider, err := assistant.Builtin(ctx, name, env.cfg)
	if err != nil {
		return err //nolint:wrapcheck // configuration error names the provider
	}
	if closeProvider != nil {
		defer func() { _ = closeProvider() }()
	}

	if c.httpAddr == "" {
		return mcpserve.ServeStdio(ctx, p) //nolint:wrapcheck // mcpserve adds context
	}

	srv := &http.Server{
		Addr:              c.httpAddr,
		Handler:           otelhttp.NewHandler(mcpserve.Handler(p), "boxonomics.mcp"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logx.Infof("🔌 MCP %s tools on http://%s", name, c.httpAddr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mcp http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx) //nolint:wrapcheck // shutdown on signal
	}
}
