// Package postgres persists the execution journal in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/CryptoStream-Network/stream_layer/internal/journal"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements journal.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ journal.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// Open connects to the given DSN and applies pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load journal migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("prepare journal migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("init journal migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply journal migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RecordExecution(ctx context.Context, rec journal.Record) (journal.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Duration == 0 {
		rec.Duration = rec.FinishedAt.Sub(rec.StartedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_executions (id, task_id, started_at, finished_at, success, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.TaskID, rec.StartedAt, rec.FinishedAt, rec.Success, rec.Error)
	if err != nil {
		return journal.Record{}, fmt.Errorf("record execution: %w", err)
	}
	return rec, nil
}

func (s *Store) ListExecutions(ctx context.Context, taskID string, limit int) ([]journal.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, task_id, started_at, finished_at, success, error
		FROM task_executions
	`
	args := []interface{}{}
	if taskID != "" {
		query += ` WHERE task_id = $1`
		args = append(args, taskID)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	var recs []journal.Record
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	for i := range recs {
		recs[i].Duration = recs[i].FinishedAt.Sub(recs[i].StartedAt)
	}
	return recs, nil
}

func (s *Store) LastRun(ctx context.Context, taskID string) (journal.Record, bool, error) {
	recs, err := s.ListExecutions(ctx, taskID, 1)
	if err != nil {
		return journal.Record{}, false, err
	}
	if len(recs) == 0 {
		return journal.Record{}, false, nil
	}
	return recs[0], true, nil
}
