package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/forgearch/forge/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var (
	_ Store              = (*SQLiteStore)(nil)
	_ engine.RunRecorder = (*SQLiteStore)(nil)
)

// Config holds SQLite store configuration
type Config struct {
	Path string
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Open creates, initializes and migrates a store at path. The parent
// directory is created when missing.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// forge is the only writer; one connection keeps :memory: databases whole.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

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

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RecordRun writes a run report with its stages, steps and prompts in one
// transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *engine.RunReport) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	id := report.ID
	if id == "" {
		id = uuid.New().String()
		report.ID = id
	}

	warnings, err := json.Marshal(nonNil(report.PolicyWarnings))
	if err != nil {
		return fmt.Errorf("failed to encode policy warnings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, mode, profile, platform, dry_run, status, completed, policy_warnings, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		string(report.Mode),
		report.Profile,
		report.Platform,
		report.DryRun,
		string(report.Status),
		report.Completed,
		string(warnings),
		report.StartedAt.UTC(),
		finished.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	promptSeq := 0
	for i, stage := range report.Stages {
		stageID := uuid.New().String()
		var errMsg *string
		if stage.Err != nil {
			msg := stage.Err.Error()
			errMsg = &msg
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stage_results (id, run_id, seq, kind, name, status, error, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			stageID, id, i,
			string(stage.Kind), stage.Name, string(stage.Status), errMsg,
			stage.StartedAt.UTC(), stage.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to create stage %s: %w", stage.Name, err)
		}

		for j, step := range stage.Steps {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_results (id, stage_id, seq, name, kind, path, package, outcome, exit_code, message, started_at, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				uuid.New().String(), stageID, j,
				step.Step.Name, string(step.Step.Kind), step.Step.Path, step.Step.Package,
				string(step.Outcome), step.ExitCode, step.Message,
				step.StartedAt.UTC(), step.Duration.Milliseconds(),
			)
			if err != nil {
				return fmt.Errorf("failed to create step %s: %w", step.Step.Name, err)
			}
		}

		for _, p := range stage.Prompts {
			if err := insertPrompt(ctx, tx, id, &stageID, promptSeq, p); err != nil {
				return err
			}
			promptSeq++
		}
	}

	for _, p := range report.Prompts {
		if err := insertPrompt(ctx, tx, id, nil, promptSeq, p); err != nil {
			return err
		}
		promptSeq++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func insertPrompt(ctx context.Context, tx *sql.Tx, runID string, stageID *string, seq int, p engine.PromptRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO prompts (id, run_id, stage_id, seq, stage, reason, answer, asked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.New().String(), runID, stageID, seq, p.Stage, p.Reason, p.Continue, p.AskedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create prompt: %w", err)
	}
	return nil
}

const runColumns = `id, mode, profile, platform, dry_run, status, completed, policy_warnings, started_at, finished_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var warnings string
	err := row.Scan(
		&run.ID,
		&run.Mode,
		&run.Profile,
		&run.Platform,
		&run.DryRun,
		&run.Status,
		&run.Completed,
		&warnings,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(warnings), &run.PolicyWarnings); err != nil {
		return nil, fmt.Errorf("failed to decode policy warnings: %w", err)
	}
	return run, nil
}

// GetRun retrieves a run by ID with its stages, steps and prompts.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Stages, err = s.listStages(ctx, id); err != nil {
		return nil, err
	}
	if run.Prompts, err = s.listPrompts(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) listStages(ctx context.Context, runID string) ([]*Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, seq, kind, name, status, error, started_at, duration_ms
		FROM stage_results
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	defer rows.Close()

	stages := []*Stage{}
	byID := map[string]*Stage{}
	for rows.Next() {
		stage := &Stage{}
		var ms int64
		if err := rows.Scan(
			&stage.ID, &stage.RunID, &stage.Seq, &stage.Kind, &stage.Name,
			&stage.Status, &stage.Error, &stage.StartedAt, &ms,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		stage.Duration = time.Duration(ms) * time.Millisecond
		stages = append(stages, stage)
		byID[stage.ID] = stage
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stages: %w", err)
	}

	stepRows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.stage_id, st.seq, st.name, st.kind, st.path, st.package, st.outcome, st.exit_code, st.message, st.started_at, st.duration_ms
		FROM step_results st
		JOIN stage_results sr ON sr.id = st.stage_id
		WHERE sr.run_id = ?
		ORDER BY sr.seq, st.seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer stepRows.Close()

	for stepRows.Next() {
		step := &Step{}
		var ms int64
		if err := stepRows.Scan(
			&step.ID, &step.StageID, &step.Seq, &step.Name, &step.Kind, &step.Path, &step.Package,
			&step.Outcome, &step.ExitCode, &step.Message, &step.StartedAt, &ms,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		step.Duration = time.Duration(ms) * time.Millisecond
		if stage, ok := byID[step.StageID]; ok {
			stage.Steps = append(stage.Steps, step)
		}
	}
	if err := stepRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}

	return stages, nil
}

func (s *SQLiteStore) listPrompts(ctx context.Context, runID string) ([]*Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, stage_id, seq, stage, reason, answer, asked_at
		FROM prompts
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []*Prompt{}
	for rows.Next() {
		p := &Prompt{}
		if err := rows.Scan(&p.ID, &p.RunID, &p.StageID, &p.Seq, &p.Stage, &p.Reason, &p.Continue, &p.AskedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate prompts: %w", err)
	}
	return prompts, nil
}

// ListRuns lists runs, newest first, with pagination. Stages are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + `
		FROM runs
		ORDER BY started_at DESC, created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run by ID
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	query := `DELETE FROM runs WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
