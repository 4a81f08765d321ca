package main

import (
	"github.com/spf13/cobra"
)

func newPreflightCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check credentials and data for the configured model and providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadRuntime(cmd.Context(), global)
			if err != nil {
				return err
			}
			defer env.Close()
			return runPreflight(cmd.Context(), env.cfg, cmd.OutOrStdout(), true)
		},
	}
}
