package commands

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
	"github.com/bit2swaz/tmpsweep/pkg/observability"
)

type sweepFlags struct {
	days        int
	dryRun      bool
	concurrency int
	metricsFile string
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	flags := &sweepFlags{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete temporary uploads older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runSweep(cmd, opts, flags)
		},
	}
	cmd.Flags().IntVar(&flags.days, "days", 1, "retention window in days")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "only report what would be deleted")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 1, "dated directories processed in parallel")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
	return cmd
}

func runSweep(cmd *cobra.Command, opts *rootOptions, flags *sweepFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	cfg, err := opts.load()
	if err != nil {
		logError(errOut, err.Error())
		return err
	}
	if cmd.Flags().Changed("days") {
		cfg.WindowDays = flags.days
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = flags.concurrency
	}
	if flags.metricsFile != "" {
		cfg.Metrics.Textfile = flags.metricsFile
	}

	logger, err := opts.logger(cfg)
	if err != nil {
		logError(errOut, err.Error())
		return err
	}
	defer func() { _ = logger.Sync() }()

	var reg *prometheus.Registry
	if cfg.Metrics.Textfile != "" {
		reg = prometheus.NewRegistry()
	}

	rep := &reporter{out: out, errOut: errOut}
	env, err := runner.FromConfig(ctx, cfg, logger, rep, registerer(reg))
	if err != nil {
		logError(errOut, err.Error())
		if runner.IsConfigError(err) {
			return newExitError(exitConfig, err)
		}
		return newExitError(1, err)
	}
	defer env.Close()

	sum, err := env.Runner.Run(ctx, runner.Request{
		WindowDays:  cfg.WindowDays,
		DryRun:      flags.dryRun,
		Concurrency: cfg.Concurrency,
		Trigger:     "cli",
	})
	if err != nil {
		logError(errOut, err.Error())
		return newExitError(exitConfig, err)
	}

	printSummary(out, errOut, sum)

	if reg != nil {
		if err := observability.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logWarning(errOut, fmt.Sprintf("write metrics textfile: %v", err))
		}
	}
	return nil
}

// registerer avoids handing FromConfig a typed nil.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

func printSummary(out, errOut io.Writer, sum sweeper.Summary) {
	if sum.RootErr != nil {
		logError(errOut, fmt.Sprintf("Could not list %s: %v", sum.Root, sum.RootErr))
		return
	}

	if len(sum.Failures) > 0 {
		logWarning(errOut, fmt.Sprintf("%d path(s) could not be processed", len(sum.Failures)))
	}
	if sum.Canceled {
		logWarning(errOut, "Sweep interrupted before all directories were processed")
	}
	if sum.Excluded > 0 {
		logInfo(out, subtleStyle.Sprintf("Kept %d protected file(s)", sum.Excluded))
	}

	switch {
	case sum.Files == 0:
		logInfo(out, "No orphaned files found to clean up.")
	case sum.DryRun:
		logSuccess(out, fmt.Sprintf("Would delete %d files (%s)", sum.Files, sweeper.FormatSize(sum.Bytes)))
	default:
		logSuccess(out, fmt.Sprintf("Deleted %d files (%s)", sum.Files, sweeper.FormatSize(sum.Bytes)))
	}
}

// reporter prints sweep events as they happen. Lines are written under a
// mutex because concurrent directories report from several goroutines.
type reporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

func (r *reporter) Report(e sweeper.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case sweeper.EventWouldDelete:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix(), dryRunStyle.Sprint("Would delete:"), fmt.Sprintf("%s (%s)", e.Path, sweeper.FormatSize(e.Size)))
	case sweeper.EventDeleted:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix(), deleteStyle.Sprint("Deleted:"), fmt.Sprintf("%s (%s)", e.Path, sweeper.FormatSize(e.Size)))
	case sweeper.EventDirRemoved:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix(), subtleStyle.Sprint("Removed empty directory:"), e.Path)
	case sweeper.EventExcluded:
		fmt.Fprintf(r.out, "%s %s %s\n", prefix(), subtleStyle.Sprint("Protected:"), e.Path)
	case sweeper.EventDeleteFailed:
		logError(r.errOut, fmt.Sprintf("Failed to delete %s: %v", e.Path, e.Err))
	case sweeper.EventDirFailed:
		logWarning(r.errOut, fmt.Sprintf("Skipped directory %s: %v", e.Path, e.Err))
	}
}
