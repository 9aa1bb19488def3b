// Package cli holds the cobra commands of the jetflow binary. Applications
// build their own binary by passing their job and stream registries to
// NewRootCommand.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/jobs"
	"github.com/drblury/jetflow/internal/runtime/streams"
)

// Version is printed by the version command. Overridden at build time with
// -ldflags "-X github.com/drblury/jetflow/cli.Version=...".
var Version = "0.1.0"

// Processor selectors accepted as the positional argument.
const (
	SelectJobs    = "jobs"
	SelectStreams = "streams"
)

// App is what the application contributes to the binary.
type App struct {
	Jobs     *jobs.Registry
	Streams  *streams.Registry
	JobHooks jobs.Hooks
	// Client replaces the transport configured by the broker setting.
	Client broker.Client
}

// RootOptions holds the flags of the root command.
type RootOptions struct {
	Concurrency int
	Timeout     time.Duration
	ConfigFile  string
	Setup       bool
	Dev         bool
}

// NewRootCommand creates the root command. With no positional argument both
// processors run.
func NewRootCommand(app App) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jetflow [jobs|streams]",
		Short: "Run jetflow job and stream processors",
		Long: `Run the jetflow engine against NATS JetStream.

Configuration is read from --config, or ./config/jetflow.yml when present.
Every configured stream is created before the processors start.

Example:
  jetflow -C config/jetflow.yml
  jetflow -c 10 -t 30s jobs
  jetflow --setup`,
		Args:          cobra.MatchAll(cobra.MaximumNArgs(1), validSelector),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := ""
			if len(args) == 1 {
				selector = args[0]
			}
			return run(cmd, app, opts, selector)
		},
	}

	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "c", 0, "worker pool size (overrides config)")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 0, "shutdown timeout (overrides config)")
	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "C", "", "path to config file")
	cmd.Flags().BoolVarP(&opts.Setup, "setup", "s", false, "load config, create streams and exit")
	cmd.Flags().BoolVar(&opts.Dev, "dev", false, "debug logging")

	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints the version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jetflow %s\n", Version)
		},
	}
}

// Execute runs the root command with os.Args and exits non-zero on error.
func Execute(app App) {
	cmd := NewRootCommand(app)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

func validSelector(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case SelectJobs, SelectStreams:
		return nil
	}
	return fmt.Errorf("invalid processor %q: must be %s or %s", args[0], SelectJobs, SelectStreams)
}
