package scorestore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"github.com/okian/leaderboard/internal/domain/model"
)

const (
	pgUpsertQuery = `INSERT INTO players (player_id, name, score, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (player_id) DO UPDATE SET
    name = CASE WHEN EXCLUDED.updated_at >= players.updated_at THEN EXCLUDED.name ELSE players.name END,
    score = GREATEST(players.score, EXCLUDED.score),
    updated_at = GREATEST(players.updated_at, EXCLUDED.updated_at)`

	pgGetQuery = `SELECT player_id, name, score, created_at, updated_at FROM players WHERE player_id = $1`

	pgAllQuery = `SELECT player_id, name, score, created_at, updated_at FROM players ORDER BY player_id`
)

// Compile-time check for ensuring PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore persists records to a PostgreSQL (or CockroachDB) instance.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to the instance specified by dsn and applies the
// embedded schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.Errorf("open postgres: %w", ErrMissingDSN)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, xerrors.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("pinging database: %w", err)
	}
	if err := migrate(ctx, db, "postgres"); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec model.PlayerRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = rec.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, pgUpsertQuery,
		rec.PlayerID, rec.Name, rec.Score, rec.CreatedAt.UTC(), updated.UTC())
	if err != nil {
		if isCheckViolationError(err) {
			return xerrors.Errorf("upsert %q: %w", rec.PlayerID, ErrInvalidRecord)
		}
		return xerrors.Errorf("upsert %q: %w", rec.PlayerID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (model.PlayerRecord, error) {
	rec, err := scanPostgres(s.db.QueryRowContext(ctx, pgGetQuery, playerID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, model.ErrNotFound)
	}
	if err != nil {
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, err)
	}
	return rec, nil
}

func (s *PostgresStore) All(ctx context.Context) (Iterator, error) {
	rows, err := s.db.QueryContext(ctx, pgAllQuery)
	if err != nil {
		return nil, xerrors.Errorf("all: %w", err)
	}
	return &rowsIterator{rows: rows, scan: func(r *sql.Rows) (model.PlayerRecord, error) {
		return scanPostgres(r)
	}}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close terminates the connection to the backing instance.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Truncate removes every record. Test suites use it between cases.
func (s *PostgresStore) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM players")
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPostgres(row scanner) (model.PlayerRecord, error) {
	var rec model.PlayerRecord
	if err := row.Scan(&rec.PlayerID, &rec.Name, &rec.Score, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.PlayerRecord{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// Returns true if err indicates a check constraint violation.
func isCheckViolationError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Name() == "check_violation"
}
