package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/tmpsweep/internal/history"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent sweep runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return runHistory(cmd, opts, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *rootOptions, limit int) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if limit <= 0 {
		err := fmt.Errorf("--limit must be positive, got %d", limit)
		logError(errOut, err.Error())
		return newExitError(exitConfig, err)
	}

	cfg, err := opts.load()
	if err != nil {
		logError(errOut, err.Error())
		return err
	}
	if cfg.History.DatabaseURL == "" {
		err := errors.New("history.database_url is not configured")
		logError(errOut, err.Error())
		return newExitError(exitConfig, err)
	}

	store, err := history.Connect(ctx, cfg.History.DatabaseURL)
	if err != nil {
		logError(errOut, err.Error())
		return newExitError(1, err)
	}
	defer store.Close()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		logError(errOut, err.Error())
		return newExitError(1, err)
	}

	printRuns(out, runs)
	return nil
}

func printRuns(out io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		logInfo(out, "No sweeps recorded yet.")
		return
	}
	for _, run := range runs {
		mode := "execute"
		if run.DryRun {
			mode = "dry-run"
		}
		line := fmt.Sprintf("%s  %-8s  %-7s  %d files (%s)  %d dirs  %d failures",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Trigger, mode, run.Files, sweeper.FormatSize(run.Bytes), run.DirsRemoved, run.Failures)
		if run.Error != "" {
			fmt.Fprintf(out, "%s %s %s\n", prefix(), infoStyle.Sprint(line), errorStyle.Sprint(run.Error))
			continue
		}
		fmt.Fprintf(out, "%s %s\n", prefix(), infoStyle.Sprint(line))
	}
}
