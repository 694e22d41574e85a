// Package scheduler runs a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Daily fires Job every day at Hour:Minute in Location. Runs never overlap:
// the next fire time is computed only after the previous job returned.
type Daily struct {
	Hour       int
	Minute     int
	Location   *time.Location
	Job        func(ctx context.Context) error
	Logger     *zap.Logger
	RunOnStart bool

	// Now and After are replaced in tests.
	Now   func() time.Time
	After func(d time.Duration) <-chan time.Time
}

// NextRun returns the first fire time strictly after now.
func (d *Daily) NextRun(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return next
}

// Run blocks until ctx is canceled.
func (d *Daily) Run(ctx context.Context) error {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	after := d.After
	if after == nil {
		after = time.After
	}

	if d.RunOnStart {
		d.fire(ctx, log)
	}

	for {
		next := d.NextRun(now())
		log.Info("next sweep scheduled", zap.Time("at", next))

		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return ctx.Err()
		case <-after(next.Sub(now())):
			d.fire(ctx, log)
		}
	}
}

func (d *Daily) fire(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := d.Job(ctx); err != nil {
		log.Error("scheduled sweep failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return
	}
	log.Info("scheduled sweep succeeded", zap.Duration("elapsed", time.Since(start)))
}
