package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/interactive.eval/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "interactive-eval %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
			return nil
		},
	}
}
