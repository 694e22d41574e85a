package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/internal/config"
	"github.com/bit2swaz/tmpsweep/internal/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "tmpsweep",
		Short:         "Retention sweeper for date-partitioned temporary uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			configureColor(cmd.OutOrStdout())
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to tmpsweep.yml (default ./tmpsweep.yml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "write structured logs to stderr")

	root.AddCommand(newInitCommand())
	root.AddCommand(newSweepCommand(opts))
	root.AddCommand(newStashCommand(opts))
	root.AddCommand(newHistoryCommand(opts))
	root.AddCommand(newLoginCommand())
	root.AddCommand(newRemoteCommand())

	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

// load reads and validates the configuration. Failures are config errors.
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, newExitError(exitConfig, fmt.Errorf("load config: %w", err))
	}
	return cfg, nil
}

// logger builds the zap logger for a CLI run. The console sink only shows
// up with --verbose so it does not interleave with the report lines.
func (o *rootOptions) logger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := cfg.Log
	logCfg.Console = o.verbose
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, newExitError(exitConfig, fmt.Errorf("init logger: %w", err))
	}
	return logger, nil
}
