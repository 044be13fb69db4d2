package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ethereum-optimism/infra/op-narrator/types"
)

const PostgresReporterName = "postgres"

// PostgresSchema creates the tables the postgres reporter writes to
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS narrator_runs (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	instance    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	setup_error TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	passed      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	pending     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS narrator_steps (
	run_id      TEXT NOT NULL REFERENCES narrator_runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	ordinal     INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT,
	artifact    TEXT,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);`

// TxBeginner is the part of *pgxpool.Pool the postgres reporter needs
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Execer runs a statement without returning rows
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// NewPostgresPool connects to the database at dsn and verifies the connection
func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// EnsurePostgresSchema creates the reporter tables if they do not exist
func EnsurePostgresSchema(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

var _ Reporter = (*PostgresReporter)(nil)

// PostgresReporter stores runs and their steps in postgres. Writing the same
// run again replaces its previous rows.
type PostgresReporter struct {
	db TxBeginner
}

// NewPostgresReporter creates a reporter writing through db
func NewPostgresReporter(db TxBeginner) *PostgresReporter {
	return &PostgresReporter{db: db}
}

func (r *PostgresReporter) Name() string {
	return PostgresReporterName
}

// SetOutputDirectory is a no-op, rows are not files
func (r *PostgresReporter) SetOutputDirectory(string) {}

func (r *PostgresReporter) GenerateReportFor(ctx context.Context, run *types.Run) error {
	stats := run.Stats()
	var setupErr any
	if run.SetupError != nil {
		setupErr = run.SetupError.Error()
	}

	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO narrator_runs (id, title, instance, status, setup_error, started_at, finished_at,
			                           passed, failed, skipped, pending)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				instance = EXCLUDED.instance,
				status = EXCLUDED.status,
				setup_error = EXCLUDED.setup_error,
				started_at = EXCLUDED.started_at,
				finished_at = EXCLUDED.finished_at,
				passed = EXCLUDED.passed,
				failed = EXCLUDED.failed,
				skipped = EXCLUDED.skipped,
				pending = EXCLUDED.pending
		`
		_, err := tx.Exec(ctx, query,
			run.ID,
			run.Title,
			run.Instance,
			string(run.Status),
			setupErr,
			run.StartTime,
			run.EndTime,
			stats.Passed,
			stats.Failed,
			stats.Skipped,
			stats.Pending,
		)
		if err != nil {
			return fmt.Errorf("upsert run: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM narrator_steps WHERE run_id = $1`, run.ID); err != nil {
			return fmt.Errorf("clear steps: %w", err)
		}

		for _, step := range run.Steps {
			_, err := tx.Exec(ctx, `
				INSERT INTO narrator_steps (run_id, position, name, ordinal, status, error, artifact, duration_ms)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`,
				run.ID,
				step.Position,
				step.Name,
				step.Order,
				string(step.Status),
				nullString(step.ErrorMessage()),
				nullString(step.Artifact),
				step.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("insert step %d: %w", step.Position, err)
			}
		}
		return nil
	})
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
