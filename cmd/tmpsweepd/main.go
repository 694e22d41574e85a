package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bit2swaz/tmpsweep/internal/api"
	"github.com/bit2swaz/tmpsweep/internal/api/ratelimit"
	"github.com/bit2swaz/tmpsweep/internal/config"
	"github.com/bit2swaz/tmpsweep/internal/logging"
	"github.com/bit2swaz/tmpsweep/internal/runner"
	"github.com/bit2swaz/tmpsweep/internal/scheduler"
)

func main() {
	cfg, err := config.Load(os.Getenv("TMPSWEEP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("tmpsweepd exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("tmpsweepd stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	setupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	env, err := runner.FromConfig(setupCtx, cfg, logger, nil, reg)
	cancel()
	if err != nil {
		return err
	}
	defer env.Close()

	hour, minute, err := cfg.Schedule.Clock()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	daily := &scheduler.Daily{
		Hour:       hour,
		Minute:     minute,
		Location:   loc,
		RunOnStart: cfg.Schedule.RunOnStart,
		Logger:     logger.Named("scheduler"),
		Job: func(ctx context.Context) error {
			sum, err := env.Runner.Run(ctx, runner.Request{
				WindowDays:  cfg.WindowDays,
				Concurrency: cfg.Concurrency,
				Trigger:     "schedule",
			})
			if err != nil {
				return err
			}
			return sum.RootErr
		},
	}

	var limiter *ratelimit.Limiter
	if n := parseEnvInt(logger, "TMPSWEEP_TRIGGER_LIMIT_PER_HOUR", 12); n > 0 {
		limiter = ratelimit.New(n, time.Hour)
	}

	var runs api.RunLister
	if env.History != nil {
		runs = env.History
	}

	if cfg.Server.AuthToken == "" {
		logger.Warn("running without an auth token; /v1 is public")
	}

	apiServer := api.NewServer(env.Runner, runs, api.Config{
		WindowDays:  cfg.WindowDays,
		Concurrency: cfg.Concurrency,
		AuthToken:   cfg.Server.AuthToken,
		Gatherer:    reg,
		Metrics:     env.Metrics,
		Limiter:     limiter,
		Logger:      logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("tmpsweepd listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := daily.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		apiServer.StartLimiterJanitor(gctx, 5*time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})

	return g.Wait()
}

func parseEnvInt(logger *zap.Logger, key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("invalid integer, using fallback", zap.String("key", key), zap.String("value", raw), zap.Int("fallback", fallback))
		return fallback
	}

	return max(v, 0)
}
