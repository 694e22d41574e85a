package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bit2swaz/tmpsweep/internal/config"
	"github.com/bit2swaz/tmpsweep/internal/history"
	"github.com/bit2swaz/tmpsweep/internal/sweeper"
	"github.com/bit2swaz/tmpsweep/pkg/observability"
	"github.com/bit2swaz/tmpsweep/pkg/storage/memory"
)

var testNow = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []history.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run history.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func newStore() *memory.Store {
	s := memory.New()
	s.AddFile("tmp/2024/03/01/upload.bin", 2048)
	s.AddFile("tmp/2024/03/05/today.bin", 10)
	return s
}

func TestRunRecordsHistoryAndMetrics(t *testing.T) {
	store := newStore()
	reg := prometheus.NewRegistry()
	metrics := observability.NewSweepMetrics(reg)
	rec := &fakeRecorder{}

	r := New(sweeper.New(store), WithMetrics(metrics), WithRecorder(rec))
	sum, err := r.Run(context.Background(), Request{WindowDays: 1, Trigger: "cli", Now: testNow})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, int64(2048), sum.Bytes)
	assert.False(t, store.HasFile("tmp/2024/03/01/upload.bin"))
	assert.True(t, store.HasFile("tmp/2024/03/05/today.bin"))

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, "cli", run.Trigger)
	assert.Equal(t, 1, run.Files)
	assert.Equal(t, int64(2048), run.Bytes)
	assert.Equal(t, 1, run.WindowDays)
	assert.Empty(t, run.Error)
	assert.NotEqual(t, uuid.Nil, run.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Files.WithLabelValues("execute")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(metrics.Bytes.WithLabelValues("execute")))
}

func TestRunRejectsNegativeWindow(t *testing.T) {
	store := newStore()
	rec := &fakeRecorder{}
	r := New(sweeper.New(store), WithRecorder(rec))

	_, err := r.Run(context.Background(), Request{WindowDays: -1, Now: testNow})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Empty(t, rec.runs)
	assert.Zero(t, store.Deletes())
}

func TestRunRootFailureIsRecorded(t *testing.T) {
	store := newStore()
	store.FailOn(memory.OpList, "tmp", errors.New("access denied"))
	reg := prometheus.NewRegistry()
	metrics := observability.NewSweepMetrics(reg)
	rec := &fakeRecorder{}

	r := New(sweeper.New(store), WithMetrics(metrics), WithRecorder(rec))
	sum, err := r.Run(context.Background(), Request{WindowDays: 1, Now: testNow})
	require.NoError(t, err)
	require.Error(t, sum.RootErr)

	require.Len(t, rec.runs, 1)
	assert.Contains(t, rec.runs[0].Error, "access denied")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Runs.WithLabelValues("failure")))
}

func TestRunRecorderFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &fakeRecorder{err: errors.New("db down")}

	r := New(sweeper.New(newStore()), WithRecorder(rec), WithLogger(zap.New(core)))
	_, err := r.Run(context.Background(), Request{WindowDays: 1, Trigger: "schedule", Now: testNow})
	require.NoError(t, err)

	entries := logs.FilterMessage("record sweep run failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "schedule", entries[0].ContextMap()["trigger"])
}

func TestRunDryRunDeletesNothing(t *testing.T) {
	store := newStore()
	r := New(sweeper.New(store))

	sum, err := r.Run(context.Background(), Request{WindowDays: 1, DryRun: true, Now: testNow})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Zero(t, store.Deletes())
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StorageConfig{Driver: "ftp"}, nil)
	require.Error(t, err)
}

func TestFromConfigLocal(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "tmp", "2020", "01", "01")
	require.NoError(t, os.MkdirAll(old, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(old, "keep.lock"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(old, "stale.bin"), []byte("xyz"), 0o644))

	cfg := config.Default()
	cfg.Storage.Local.Path = dir
	cfg.Exclude = []string{"**/*.lock"}
	cfg.IgnoreFile = filepath.Join(dir, "missing-ignore")

	env, err := FromConfig(context.Background(), cfg, nil, nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer env.Close()
	assert.Equal(t, "tmp", env.Root)
	assert.Nil(t, env.History)

	sum, err := env.Runner.Run(context.Background(), Request{WindowDays: 1, Trigger: "cli"})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, int64(3), sum.Bytes)
	assert.Equal(t, 1, sum.Excluded)

	_, err = os.Stat(filepath.Join(old, "keep.lock"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(old, "stale.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestFromConfigRejectsInvalid(t *testing.T) {
	cfg := config.Default()
	cfg.WindowDays = -3

	_, err := FromConfig(context.Background(), cfg, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
