// Package runner wires a sweeper to its surroundings: storage from config,
// metrics, run history and structured logs. The CLI, the scheduler and the
// HTTP trigger all go through Runner.Run.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/bit2swaz/tmpsweep/internal/config"
	"github.com/bit2swaz/tmpsweep/internal/history"
	"github.com/bit2swaz/tmpsweep/internal/ignore"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
	"github.com/bit2swaz/tmpsweep/pkg/observability"
	"github.com/bit2swaz/tmpsweep/pkg/storage"
)

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

type Request struct {
	WindowDays  int
	DryRun      bool
	Concurrency int
	// Trigger names who started the run: "cli", "schedule" or "api".
	Trigger string
	Now     time.Time
}

type Runner struct {
	mu       sync.Mutex
	sweeper  *sweeper.Sweeper
	metrics  *observability.SweepMetrics
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Runner)

func WithMetrics(m *observability.SweepMetrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(sw *sweeper.Sweeper, opts ...Option) *Runner {
	r := &Runner{
		sweeper: sw,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one sweep. Runs inside one process never overlap; a second
// caller waits for the first to finish.
func (r *Runner) Run(ctx context.Context, req Request) (sweeper.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID := uuid.New()
	log := r.logger.With(zap.String("run_id", runID.String()), zap.String("trigger", req.Trigger))
	started := r.now()

	sum, err := r.sweeper.Run(ctx, sweeper.Options{
		WindowDays:  req.WindowDays,
		DryRun:      req.DryRun,
		Now:         req.Now,
		Concurrency: req.Concurrency,
	})
	finished := r.now()

	r.metrics.Observe(observability.RunStats{
		DryRun:      req.DryRun,
		Files:       sum.Files,
		Bytes:       sum.Bytes,
		DirsRemoved: sum.DirsRemoved,
		Failures:    sum.FailuresByOp(),
		Duration:    finished.Sub(started),
		Succeeded:   err == nil && sum.RootErr == nil,
		FinishedAt:  finished,
	})

	if err != nil {
		log.Error("sweep rejected", zap.Error(err))
		return sum, err
	}

	fields := []zap.Field{
		zap.Bool("dry_run", req.DryRun),
		zap.Int("window_days", req.WindowDays),
		zap.Int("files", sum.Files),
		zap.Int64("bytes", sum.Bytes),
		zap.String("size", sweeper.FormatSize(sum.Bytes)),
		zap.Int("dirs_removed", sum.DirsRemoved),
		zap.Int("failures", len(sum.Failures)),
		zap.Duration("elapsed", finished.Sub(started)),
	}
	if sum.RootErr != nil {
		log.Error("sweep could not list retention root", append(fields, zap.Error(sum.RootErr))...)
	} else {
		log.Info("sweep completed", fields...)
	}

	if r.recorder != nil {
		run := history.Run{
			ID:          runID,
			StartedAt:   started,
			FinishedAt:  finished,
			Trigger:     req.Trigger,
			DryRun:      req.DryRun,
			WindowDays:  req.WindowDays,
			Files:       sum.Files,
			Bytes:       sum.Bytes,
			DirsRemoved: sum.DirsRemoved,
			Failures:    len(sum.Failures),
		}
		if sum.RootErr != nil {
			run.Error = sum.RootErr.Error()
		}
		// The run already happened; a lost history row must not fail it.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := r.recorder.Record(recordCtx, run); err != nil {
			log.Warn("record sweep run failed", zap.Error(err))
		}
		cancel()
	}

	return sum, nil
}

// Env is everything FromConfig opened. Close releases it.
type Env struct {
	Runner  *Runner
	Store   storage.Store
	History *history.Store
	// Metrics is nil unless a registerer was passed to FromConfig.
	Metrics *observability.SweepMetrics
	Root    string
}

func (e *Env) Close() {
	if e.History != nil {
		e.History.Close()
	}
}

// FromConfig opens the store, the ignore matcher and, when configured, the
// history database, and returns a ready Runner.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger, reporter sweeper.Reporter, reg prometheus.Registerer) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := OpenStore(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	matcher, err := ignore.New(cfg.Exclude, cfg.IgnoreFile)
	if err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	swOpts := []sweeper.Option{
		sweeper.WithRoot(cfg.Root),
		sweeper.WithLocation(loc),
		sweeper.WithLogger(logger.Named("sweeper")),
		sweeper.WithReporter(reporter),
	}
	if !matcher.Empty() {
		swOpts = append(swOpts, sweeper.WithExcluder(matcher))
	}
	sw := sweeper.New(store, swOpts...)

	env := &Env{Store: store, Root: sw.Root()}
	runnerOpts := []Option{WithLogger(logger)}
	if reg != nil {
		env.Metrics = observability.NewSweepMetrics(reg)
		runnerOpts = append(runnerOpts, WithMetrics(env.Metrics))
	}

	if cfg.History.DatabaseURL != "" {
		hist, err := history.Connect(ctx, cfg.History.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect history: %w", err)
		}
		env.History = hist
		runnerOpts = append(runnerOpts, WithRecorder(hist))
	}

	env.Runner = New(sw, runnerOpts...)
	return env, nil
}

// IsConfigError reports whether err means the run never started because of
// bad configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, sweeper.ErrInvalidWindow) ||
		errors.Is(err, config.ErrInvalidWindow) ||
		errors.Is(err, config.ErrInvalid)
}
