package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"boxonomics/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "boxonomics %s\n", version.String())
		},
	}
}
