package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hexprov/hexprov/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DSN string
	db  *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	store := &PostgresStore{DSN: dsn, db: db}
	if err := store.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Apply(context.Background(), db, migrations.DriverPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure postgres schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) configure() error {
	if s.db == nil {
		return fmt.Errorf("postgres database is not initialized")
	}

	s.db.SetMaxOpenConns(20)
	s.db.SetMaxIdleConns(10)
	s.db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) SaveTrace(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO traces (id, label, byte_count, read_count, seek_count, span_count, truncated, document, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (id) DO UPDATE SET
    label = EXCLUDED.label,
    byte_count = EXCLUDED.byte_count,
    read_count = EXCLUDED.read_count,
    seek_count = EXCLUDED.seek_count,
    span_count = EXCLUDED.span_count,
    truncated = EXCLUDED.truncated,
    document = EXCLUDED.document,
    updated_at = NOW()`,
		rec.ID,
		rec.Label,
		rec.ByteCount,
		rec.ReadCount,
		rec.SeekCount,
		rec.SpanCount,
		rec.Truncated,
		rec.Document,
	)
	if err != nil {
		return fmt.Errorf("save trace %q: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetTrace(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM traces WHERE id = $1 LIMIT 1", id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get trace %q: %w", id, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListTraces(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM traces ORDER BY created_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trace record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteTrace(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM traces WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete trace %q: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trace %q: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
