package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kbuild/internal/app"
)

func (c *CLI) newCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove generated artifacts and the build record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			out, _ := cmd.Flags().GetString("out")
			return c.app.Clean(cmd.Context(), app.CleanOptions{
				ConfigPath: configPath,
				OutDir:     out,
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output directory override")
	return cmd
}
