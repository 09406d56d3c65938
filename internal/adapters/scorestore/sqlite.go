package scorestore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/xerrors"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/leaderboard/internal/domain/model"
)

const (
	sqliteUpsertQuery = `INSERT INTO players (player_id, name, score, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET
    name = CASE WHEN excluded.updated_at >= players.updated_at THEN excluded.name ELSE players.name END,
    score = max(players.score, excluded.score),
    updated_at = max(players.updated_at, excluded.updated_at)`

	sqliteGetQuery = `SELECT player_id, name, score, created_at, updated_at FROM players WHERE player_id = ?`

	sqliteAllQuery = `SELECT player_id, name, score, created_at, updated_at FROM players ORDER BY player_id`
)

// Compile-time check for ensuring SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists records to a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// embedded schema. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.Errorf("open sqlite: %w", ErrMissingDSN)
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, xerrors.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db, "sqlite"); err != nil {
		_ = db.Close()
		return nil, xerrors.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec model.PlayerRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = rec.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, sqliteUpsertQuery,
		rec.PlayerID, rec.Name, rec.Score, toMicros(rec.CreatedAt), toMicros(updated))
	if err != nil {
		if isSQLiteConstraint(err) {
			return xerrors.Errorf("upsert %q: %w", rec.PlayerID, ErrInvalidRecord)
		}
		return xerrors.Errorf("upsert %q: %w", rec.PlayerID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, playerID string) (model.PlayerRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteGetQuery, playerID)
	if err != nil {
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, err)
		}
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, model.ErrNotFound)
	}
	rec, err := scanSQLite(rows)
	if err != nil {
		return model.PlayerRecord{}, xerrors.Errorf("get %q: %w", playerID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) All(ctx context.Context) (Iterator, error) {
	rows, err := s.db.QueryContext(ctx, sqliteAllQuery)
	if err != nil {
		return nil, xerrors.Errorf("all: %w", err)
	}
	return &rowsIterator{rows: rows, scan: scanSQLite}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanSQLite(rows *sql.Rows) (model.PlayerRecord, error) {
	var rec model.PlayerRecord
	var created, updated int64
	if err := rows.Scan(&rec.PlayerID, &rec.Name, &rec.Score, &created, &updated); err != nil {
		return model.PlayerRecord{}, err
	}
	rec.CreatedAt = fromMicros(created)
	rec.UpdatedAt = fromMicros(updated)
	return rec, nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK, sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			return true
		}
	}
	return false
}
