package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/go-meter/util"
)

func newStageCommand(a *app) *cobra.Command {
	var (
		bundle string
		prune  bool
	)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Copy the model files from a bundle into the assets directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := os.DirFS(bundle)
			s := a.settings

			for _, name := range []string{s.Region.Config, s.Region.Weights, s.Digits.Config, s.Digits.Weights} {
				if name == "" {
					continue
				}
				path, err := util.StageAsset(src, name, s.Assets)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)

				if !prune {
					continue
				}
				removed, err := util.PruneOtherVersions(s.Assets, path)
				if err != nil {
					return err
				}
				for _, r := range removed {
					a.logger.Info("removed stale asset", "file", r)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bundle, "bundle", "", "Directory holding the bundled model files")
	cmd.Flags().BoolVar(&prune, "prune", true, "Delete other versions of each staged file")
	_ = cmd.MarkFlagRequired("bundle")
	return cmd
}
