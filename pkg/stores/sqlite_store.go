package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/buildwave/buildwave/pkg/runner"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists run history in SQLite. It implements
// runner.HistoryRecorder.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded SQL files.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateRun inserts a new run record. A resumed run that already has a row
// keeps it and flips the status back to running.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, mode, status, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, completed_at = NULL
	`
	_, err := s.db.ExecContext(ctx, query, run.ID, run.Mode, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun closes a run record with its final counters.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status RunStatus, summary *runner.Summary) error {
	query := `
		UPDATE runs
		SET status = ?, total_packages = ?, succeeded = ?, failed = ?, skipped = ?, completed_at = ?
		WHERE id = ?
	`
	failed := summary.ByResult[runner.ResultFailed] +
		summary.ByResult[runner.ResultTimeout] +
		summary.ByResult[runner.ResultOOM] +
		summary.ByResult[runner.ResultTransient]

	result, err := s.db.ExecContext(ctx, query,
		status,
		summary.TotalPackages,
		summary.ByResult[runner.ResultSuccess],
		failed,
		summary.ByResult[runner.ResultSkipped],
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// RecordPackageResult appends one terminal package result to the run.
func (s *SQLiteStore) RecordPackageResult(ctx context.Context, runID string, res runner.PackageResult) error {
	query := `
		INSERT INTO package_results (run_id, package, result, attempts, build_time_seconds, exit_code, reason, log_file, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		runID,
		res.Package,
		string(res.Result),
		res.Attempts,
		res.BuildTimeSeconds,
		res.ExitCode,
		res.Reason,
		res.LogFile,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record package result: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, mode, status, total_packages, succeeded, failed, skipped, started_at, completed_at
		FROM runs
		WHERE id = ?
	`
	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Mode,
		&run.Status,
		&run.TotalPackages,
		&run.Succeeded,
		&run.Failed,
		&run.Skipped,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, mode, status, total_packages, succeeded, failed, skipped, started_at, completed_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID,
			&run.Mode,
			&run.Status,
			&run.TotalPackages,
			&run.Succeeded,
			&run.Failed,
			&run.Skipped,
			&run.StartedAt,
			&run.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListPackageResults returns the package results of a run in insertion order.
func (s *SQLiteStore) ListPackageResults(ctx context.Context, runID string) ([]*PackageResultRow, error) {
	query := `
		SELECT id, run_id, package, result, attempts, build_time_seconds, exit_code, reason, log_file, recorded_at
		FROM package_results
		WHERE run_id = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list package results: %w", err)
	}
	defer rows.Close()

	var results []*PackageResultRow
	for rows.Next() {
		row := &PackageResultRow{}
		if err := rows.Scan(
			&row.ID,
			&row.RunID,
			&row.Package,
			&row.Result,
			&row.Attempts,
			&row.BuildTimeSeconds,
			&row.ExitCode,
			&row.Reason,
			&row.LogFile,
			&row.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan package result: %w", err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
