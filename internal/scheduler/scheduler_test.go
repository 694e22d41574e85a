package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNextRun(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name string
		d    Daily
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			d:    Daily{Hour: 3},
			now:  time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC),
			want: time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "already passed",
			d:    Daily{Hour: 3},
			now:  time.Date(2024, 5, 1, 4, 0, 0, 0, time.UTC),
			want: time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly now moves to tomorrow",
			d:    Daily{Hour: 3, Minute: 15},
			now:  time.Date(2024, 5, 1, 3, 15, 0, 0, time.UTC),
			want: time.Date(2024, 5, 2, 3, 15, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			d:    Daily{Hour: 0, Minute: 30},
			now:  time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2024, 2, 1, 0, 30, 0, 0, time.UTC),
		},
		{
			name: "other location",
			d:    Daily{Hour: 3, Location: berlin},
			now:  time.Date(2024, 5, 1, 0, 30, 0, 0, time.UTC),
			want: time.Date(2024, 5, 1, 3, 0, 0, 0, berlin),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.d.NextRun(tt.now)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRunFiresAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	ticks := make(chan time.Time)
	ran := make(chan struct{})
	d := &Daily{
		Hour:   3,
		Logger: zap.New(core),
		Now:    func() time.Time { return time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC) },
		After:  func(time.Duration) <-chan time.Time { return ticks },
		Job: func(context.Context) error {
			defer func() { ran <- struct{}{} }()
			if calls.Add(1) == 2 {
				return errors.New("store unreachable")
			}
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	ticks <- time.Time{}
	<-ran
	ticks <- time.Time{}
	<-ran
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("scheduled sweep succeeded").Len())
	failed := logs.FilterMessage("scheduled sweep failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestRunOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	d := &Daily{
		RunOnStart: true,
		After:      func(time.Duration) <-chan time.Time { return nil },
		Job: func(context.Context) error {
			calls.Add(1)
			cancel()
			return nil
		},
	}

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunStopsWithoutFiring(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Daily{Job: func(context.Context) error {
		t.Fatal("job must not run")
		return nil
	}}
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
}
