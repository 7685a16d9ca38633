// Package commands implements the CLI commands for kbuild.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/kbuild/internal/app"
	"go.trai.ch/kbuild/internal/build"
	"go.trai.ch/kbuild/internal/core/domain"
)

// CLI represents the command line interface for kbuild.
type CLI struct {
	app     Application
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Build(ctx context.Context, opts app.BuildOptions) (*domain.Result, error)
	Watch(ctx context.Context, opts app.BuildOptions) error
	Archs(ctx context.Context, opts app.BuildOptions) error
	Clean(ctx context.Context, opts app.CleanOptions) error
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	rootCmd := &cobra.Command{
		Use:           "kbuild",
		Short:         "Compile CUDA kernels into PTX or a static library as a build step",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Path to kbuild.yaml or a directory to search from (default: current directory)")
	pf.String("log-format", "auto", "Log format: auto, pretty, or json")
	pf.String("progress", "auto", "Progress output: auto, linear, or quiet")
	pf.BoolP("verbose", "v", false, "Log compiler commands and raw tool output")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newArchsCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// buildOptions reads the persistent flags and the build flags of cmd.
func buildOptions(cmd *cobra.Command) app.BuildOptions {
	configPath, _ := cmd.Flags().GetString("config")
	logFormat, _ := cmd.Flags().GetString("log-format")
	progress, _ := cmd.Flags().GetString("progress")
	verbose, _ := cmd.Flags().GetBool("verbose")
	mode, _ := cmd.Flags().GetString("mode")
	out, _ := cmd.Flags().GetString("out")
	force, _ := cmd.Flags().GetBool("force")

	return app.BuildOptions{
		ConfigPath: configPath,
		Mode:       mode,
		OutDir:     out,
		Force:      force,
		LogFormat:  logFormat,
		Progress:   progress,
		Verbose:    verbose,
	}
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("mode", "m", "", "Output mode override: ptx or lib")
	cmd.Flags().StringP("out", "o", "", "Output directory override")
	cmd.Flags().BoolP("force", "f", false, "Ignore the build record and recompile every kernel")
}
