package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), "  ")
	assert.Error(t, err)

	_, err = Connect(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}

func TestRecordAndRecentWithPostgres(t *testing.T) {
	dsn := os.Getenv("TMPSWEEP_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TMPSWEEP_TEST_DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()

	started := time.Now().UTC().Truncate(time.Microsecond)
	run := Run{
		ID:         uuid.New(),
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Trigger:    "test",
		WindowDays: 1,
		Files:      4,
		Bytes:      4096,
	}
	require.NoError(t, store.Record(ctx, run))

	runs, err := store.Recent(ctx, 50)
	require.NoError(t, err)

	var found bool
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
			assert.Equal(t, run.Files, r.Files)
			assert.Equal(t, run.Bytes, r.Bytes)
			assert.True(t, run.StartedAt.Equal(r.StartedAt))
		}
	}
	assert.True(t, found, "recorded run should be listed")
}
