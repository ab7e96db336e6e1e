package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookdepot/coverdl/internal/domain"
	_ "github.com/lib/pq"
)

const runSchemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_name TEXT NOT NULL,
	request JSONB NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	report JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(ctx context.Context, dsn string) (*PostgresRunStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRunStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, runSchemaSQL); err != nil {
		return fmt.Errorf("ensure runs schema: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRunStore) Create(ctx context.Context, run domain.Run) error {
	requestJSON, err := json.Marshal(run.Request)
	if err != nil {
		return fmt.Errorf("marshal run request: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, status, source_name, request, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID,
		run.Status,
		run.SourceName,
		requestJSON,
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Get(ctx context.Context, id string) (domain.Run, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, status, source_name, request, error, created_at, updated_at
		 FROM runs
		 WHERE id = $1`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Run{}, false, nil
		}
		return domain.Run{}, false, err
	}
	return run, true, nil
}

func (s *PostgresRunStore) UpdateStatus(ctx context.Context, id, status, runErr string) (domain.Run, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
		 SET status = $1, error = $2, updated_at = $3
		 WHERE id = $4`,
		status,
		runErr,
		now,
		id,
	)
	if err != nil {
		return domain.Run{}, fmt.Errorf("update run status: %w", err)
	}

	run, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Run{}, err
	}
	if !ok {
		return domain.Run{}, ErrRunNotFound
	}
	return run, nil
}

func (s *PostgresRunStore) SetReport(ctx context.Context, id string, report domain.Report) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	result, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET report = $1, updated_at = $2 WHERE id = $3`,
		reportJSON,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("store run report: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *PostgresRunStore) GetReport(ctx context.Context, id string) (domain.Report, bool, error) {
	var reportJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = $1`, id).Scan(&reportJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, fmt.Errorf("query run report: %w", err)
	}
	if len(reportJSON) == 0 {
		return domain.Report{}, false, nil
	}

	var report domain.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return domain.Report{}, false, fmt.Errorf("unmarshal run report: %w", err)
	}
	return report, true, nil
}

func (s *PostgresRunStore) List(ctx context.Context) ([]domain.Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, status, source_name, request, error, created_at, updated_at
		 FROM runs
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (domain.Run, error) {
	var (
		run         domain.Run
		requestJSON []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.Status,
		&run.SourceName,
		&requestJSON,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Run{}, err
		}
		return domain.Run{}, fmt.Errorf("scan run: %w", err)
	}

	if err := json.Unmarshal(requestJSON, &run.Request); err != nil {
		return domain.Run{}, fmt.Errorf("unmarshal run request: %w", err)
	}
	return run, nil
}
