package main

import (
	"github.com/spf13/cobra"
)

const rootLongDesc string = `boxonomics is a boxing intelligence assistant.

A language model answers questions by calling tools from four providers:
fighter analytics (SQL), betting odds, news coverage and Reddit sentiment.

  boxonomics ask "Should I bet on Canelo vs Benavidez?"
  boxonomics chat                  Interactive session
  boxonomics serve                 HTTP API
  boxonomics serve-tools odds      Expose one provider over MCP stdio
  boxonomics init-db --sample      Create and seed the analytics database`

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	secretsDir string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "boxonomics",
		Short:         "Boxing intelligence assistant",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default boxonomics.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.secretsDir, "secrets-dir", ".", "Directory holding .boxonomics/secrets.json.enc")
	cmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(
		newAskCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
		newServeToolsCmd(opts),
		newInitDBCmd(opts),
		newStatsCmd(opts),
		newSecretsCmd(opts),
		newToolsCmd(opts),
		newPreflightCmd(opts),
		newVersionCmd(),
	)
	return cmd
}
