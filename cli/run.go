package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/drblury/jetflow/internal/runtime"
	"github.com/drblury/jetflow/internal/runtime/config"
	"github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/processor"
	"github.com/drblury/jetflow/transport"
	// Register the built-in transports.
	_ "github.com/drblury/jetflow/transport/transports"
)

func run(cmd *cobra.Command, app App, opts *RootOptions, selector string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := logging.NewTextServiceLogger(cmd.ErrOrStderr(), opts.Dev)

	ctx := cmd.Context()
	engine, err := runtime.NewEngine(ctx, &cfg, logger, runtime.EngineDependencies{
		Client:   app.Client,
		Jobs:     app.Jobs,
		Streams:  app.Streams,
		JobHooks: app.JobHooks,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("Failed to close broker client", err, nil)
		}
	}()

	if opts.Setup {
		if err := engine.UpdateStreams(ctx); err != nil {
			return fmt.Errorf("update streams: %w", err)
		}
		printStreams(cmd, engine, cfg)
		fmt.Fprintln(cmd.OutOrStdout(), "Streams were created/updated")
		return nil
	}
	if err := engine.Setup(ctx); err != nil {
		return fmt.Errorf("create streams: %w", err)
	}

	processors, err := selectProcessors(engine, selector)
	if err != nil {
		return err
	}
	return engine.Run(ctx, processors...)
}

// loadConfig reads the config file and applies the flags that were set.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	store := config.NewStore()
	if err := store.Load(opts.ConfigFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := store.Config()
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = opts.Concurrency
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = opts.Timeout
	}
	return cfg, cfg.Validate()
}

func selectProcessors(engine *runtime.Engine, selector string) ([]processor.Processor, error) {
	var out []processor.Processor
	if selector == "" || selector == SelectJobs {
		p, err := engine.JobProcessor()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if selector == "" || selector == SelectStreams {
		p, err := engine.StreamProcessor()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func printStreams(cmd *cobra.Command, engine *runtime.Engine, cfg config.Config) {
	inspector, ok := engine.Client().(transport.StreamInspector)
	if !ok {
		return
	}
	for _, name := range sortedStreams(cfg) {
		state, err := inspector.StreamState(cmd.Context(), name)
		if err != nil {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s subjects=%v messages=%d consumers=%d\n",
			state.Name, state.Subjects, state.Messages, state.Consumers)
	}
}

func sortedStreams(cfg config.Config) []string {
	names := make([]string, 0, len(cfg.Streams))
	for name := range cfg.Streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
