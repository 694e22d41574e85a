// Package history records sweep runs in Postgres so operators can see what
// the scheduled job did.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one recorded sweep.
type Run struct {
	ID          uuid.UUID `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Trigger     string    `json:"trigger"`
	DryRun      bool      `json:"dry_run"`
	WindowDays  int       `json:"window_days"`
	Files       int       `json:"files"`
	Bytes       int64     `json:"bytes"`
	DirsRemoved int       `json:"dirs_removed"`
	Failures    int       `json:"failures"`
	Error       string    `json:"error,omitempty"`
}

// Store persists runs through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	id           UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	trigger      TEXT NOT NULL,
	dry_run      BOOLEAN NOT NULL,
	window_days  INTEGER NOT NULL,
	files        INTEGER NOT NULL,
	bytes        BIGINT NOT NULL,
	dirs_removed INTEGER NOT NULL,
	failures     INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS sweep_runs_started_at_idx ON sweep_runs (started_at DESC);
`

// Connect initialises a pgx connection pool for dsn and makes sure the
// schema exists.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("history database url is not set")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate sweep_runs: %w", err)
	}
	return nil
}

// Record inserts run, assigning an ID when it has none.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sweep_runs
			(id, started_at, finished_at, trigger, dry_run, window_days, files, bytes, dirs_removed, failures, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID.String(), run.StartedAt, run.FinishedAt, run.Trigger, run.DryRun, run.WindowDays,
		run.Files, run.Bytes, run.DirsRemoved, run.Failures, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert sweep run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, started_at, finished_at, trigger, dry_run, window_days, files, bytes, dirs_removed, failures, error
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sweep runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run Run
			id  string
		)
		if err := rows.Scan(&id, &run.StartedAt, &run.FinishedAt, &run.Trigger, &run.DryRun, &run.WindowDays,
			&run.Files, &run.Bytes, &run.DirsRemoved, &run.Failures, &run.Error); err != nil {
			return nil, fmt.Errorf("scan sweep run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sweep runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Close() {
	s.pool.Close()
}
