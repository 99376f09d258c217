package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/interactive.eval/internal/dataset"
)

func newCheckCmd(a *app) *cobra.Command {
	var root, subset string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a DAVIS checkout holds every file of a subset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := dataset.New(orDefault(root, a.cfg.GetDatasetRoot()), nil)
			if err != nil {
				return err
			}
			subset = orDefault(subset, a.cfg.GetSubset())
			seqs, err := ds.Registry().Subset(subset)
			if err != nil {
				return err
			}
			if err := ds.CheckFiles(cmd.Context(), seqs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d sequences complete\n", subset, len(seqs))
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "dataset-root", "", "DAVIS checkout (default from config)")
	cmd.Flags().StringVar(&subset, "subset", "", "subset to check (default from config)")
	return cmd
}
