package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"boxonomics/pkg/assistant"
	"boxonomics/pkg/tools"
)

type toolsCommander struct {
	global *globalOptions
	asJSON bool
	plain  bool
}

func newToolsCmd(global *globalOptions) *cobra.Command {
	cmder := &toolsCommander{global: global}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools available to the model",
		Long: `List every tool from the enabled providers, grouped by provider.
No API keys are needed: providers declare their tools without credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print tool definitions as JSON")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Print without markdown rendering")
	return cmd
}

func (c *toolsCommander) run(ctx context.Context, out io.Writer) error {
	env, err := loadRuntime(ctx, c.global)
	if err != nil {
		return err
	}
	defer env.Close()

	providers, closeProviders, err := assistant.BuildProviders(ctx, env.cfg)
	if err != nil {
		return err //nolint:wrapcheck // assistant names the provider
	}
	defer func() { _ = closeProviders() }()

	registry, err := tools.Build(providers)
	if err != nil {
		return err //nolint:wrapcheck // configuration error is self-describing
	}

	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(registry.Grouped()) //nolint:wrapcheck // terminal write
	}
	fmt.Fprint(out, newRenderer(c.plain).Render(registry.GenerateToolDocumentation()))
	return nil
}
