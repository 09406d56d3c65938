// Package scorestore is the durable record of every player's best score. The
// in-memory ranking structures are rebuilt from it on startup.
package scorestore

import (
	"context"
	"strings"

	"golang.org/x/xerrors"

	"github.com/okian/leaderboard/internal/domain/model"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists player records.
type Store interface {
	// Upsert a record keyed by PlayerID.
	// On conflict the stored score becomes max(stored, new), the name is
	// overwritten and CreatedAt keeps the value from the first insert.
	Upsert(ctx context.Context, rec model.PlayerRecord) error

	// Get returns the stored record or an error wrapping model.ErrNotFound.
	Get(ctx context.Context, playerID string) (model.PlayerRecord, error)

	// All returns an iterator over every stored record.
	All(ctx context.Context) (Iterator, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// Iterator is implemented by objects that can page through stored records.
type Iterator interface {
	// Close the iterator and release any allocated resources.
	Close() error

	// Next loads the next record.
	// It returns false if no more records are available.
	Next() bool

	// Error returns the last error encountered by the iterator.
	Error() error

	// Record returns the current record.
	Record() model.PlayerRecord
}

// Open returns the store selected by driver. dsn is a file path for sqlite
// and a connection string for postgres; it is ignored for memory.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, xerrors.Errorf("open %q: %w", driver, ErrUnknownDriver)
	}
}

// Load drains an iterator into a slice.
func Load(ctx context.Context, s Store) ([]model.PlayerRecord, error) {
	it, err := s.All(ctx)
	if err != nil {
		return nil, xerrors.Errorf("load: %w", err)
	}
	defer it.Close()

	var out []model.PlayerRecord
	for it.Next() {
		out = append(out, it.Record())
	}
	if err := it.Error(); err != nil {
		return nil, xerrors.Errorf("load: %w", err)
	}
	return out, nil
}

func validate(rec model.PlayerRecord) error {
	if strings.TrimSpace(rec.PlayerID) == "" {
		return xerrors.Errorf("upsert: %w", ErrInvalidRecord)
	}
	if _, err := model.ValidateScore(rec.Score); err != nil {
		return xerrors.Errorf("upsert %q: %w", rec.PlayerID, err)
	}
	return nil
}
