package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/tmpsweep/internal/api"
	"github.com/bit2swaz/tmpsweep/internal/auth"
	"github.com/bit2swaz/tmpsweep/internal/client"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
)

func newRemoteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Control a running tmpsweepd",
	}
	cmd.AddCommand(newRemoteSweepCommand())
	cmd.AddCommand(newRemoteRunsCommand())
	return cmd
}

func remoteClient(errOut io.Writer) (*client.Client, error) {
	creds, err := auth.Load()
	if err != nil {
		logError(errOut, err.Error())
		if errors.Is(err, auth.ErrNoCredentials) {
			return nil, newExitError(exitConfig, err)
		}
		return nil, err
	}
	return client.New(creds.Server, creds.Token), nil
}

func newRemoteSweepCommand() *cobra.Command {
	var (
		days   int
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Trigger a sweep on the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			c, err := remoteClient(errOut)
			if err != nil {
				return err
			}
			params := client.SweepParams{DryRun: dryRun}
			if cmd.Flags().Changed("days") {
				params.Days = &days
			}

			res, err := c.Sweep(cmd.Context(), params)
			if err != nil {
				logError(errOut, err.Error())
				var statusErr *client.StatusError
				if errors.As(err, &statusErr) && statusErr.Code == http.StatusBadRequest {
					return newExitError(exitConfig, err)
				}
				return newExitError(1, err)
			}
			printRemoteResult(out, errOut, res)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "retention window in days (default: daemon setting)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report what would be deleted")
	return cmd
}

func newRemoteRunsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded by the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			c, err := remoteClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			runs, err := c.Runs(cmd.Context(), limit)
			if err != nil {
				logError(cmd.ErrOrStderr(), err.Error())
				return newExitError(1, err)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func printRemoteResult(out, errOut io.Writer, res *api.SweepResult) {
	for _, f := range res.Failures {
		logWarning(errOut, fmt.Sprintf("%s %s: %s", f.Op, f.Path, f.Error))
	}
	sum := sweeper.Summary{
		Root:     res.Root,
		DryRun:   res.DryRun,
		Files:    res.Files,
		Bytes:    res.Bytes,
		Excluded: res.Excluded,
		Canceled: res.Canceled,
	}
	for _, f := range res.Failures {
		sum.Failures = append(sum.Failures, sweeper.Failure{Path: f.Path, Op: f.Op, Err: errors.New(f.Error)})
	}
	if res.RootError != "" {
		sum.RootErr = errors.New(res.RootError)
	}
	printSummary(out, errOut, sum)
}
