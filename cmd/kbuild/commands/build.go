package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile changed kernels and write the descriptor or archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := c.app.Build(cmd.Context(), buildOptions(cmd))
			return err
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func (c *CLI) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild whenever a kernel or header changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Watch(cmd.Context(), buildOptions(cmd))
		},
	}
	addBuildFlags(cmd)
	return cmd
}

func (c *CLI) newArchsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archs",
		Short: "Print the GPU architectures a build would target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.Archs(cmd.Context(), buildOptions(cmd))
		},
	}
}
