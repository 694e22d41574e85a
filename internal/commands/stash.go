package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

func newStashCommand(opts *rootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "stash <file>",
		Short: "Upload a file into today's retention directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runStash(cmd, opts, args[0], name, time.Now())
		},
	}
	cmd.Flags().StringVar(&name, "as", "", "object name inside the dated directory (default: file base name)")
	return cmd
}

func runStash(cmd *cobra.Command, opts *rootOptions, src, name string, now time.Time) error {
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
	if err := cfg.Validate(); err != nil {
		logError(errOut, err.Error())
		return newExitError(exitConfig, err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return newExitError(exitConfig, err)
	}

	if name == "" {
		name = filepath.Base(src)
	}
	root, err := storage.Clean(cfg.Root)
	if err != nil {
		return newExitError(exitConfig, fmt.Errorf("root: %w", err))
	}
	object, err := storage.Clean(name)
	if err != nil || object == "" {
		return newExitError(exitConfig, fmt.Errorf("invalid object name %q", name))
	}
	key := path.Join(root, now.In(loc).Format("2006/01/02"), object)

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	logger, err := opts.logger(cfg)
	if err != nil {
		logError(errOut, err.Error())
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := runner.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		logError(errOut, err.Error())
		return fmt.Errorf("open storage: %w", err)
	}
	if err := store.Put(ctx, key, f); err != nil {
		logError(errOut, err.Error())
		return fmt.Errorf("upload %s: %w", key, err)
	}

	logSuccess(out, fmt.Sprintf("Stashed %s as %s (%s)", src, key, sweeper.FormatSize(info.Size())))
	return nil
}
