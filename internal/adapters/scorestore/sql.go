package scorestore

import (
	"context"
	"database/sql"
	"io/fs"
	"path"
	"sort"

	"golang.org/x/xerrors"

	"github.com/okian/leaderboard/internal/adapters/scorestore/migrations"
	"github.com/okian/leaderboard/internal/domain/model"
)

// migrate executes every embedded .sql file under dir in name order. The
// schema files are idempotent, so they run on every open.
func migrate(ctx context.Context, db *sql.DB, dir string) error {
	entries, err := fs.ReadDir(migrations.FS, dir)
	if err != nil {
		return xerrors.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && path.Ext(e.Name()) == ".sql" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrations.FS, path.Join(dir, name))
		if err != nil {
			return xerrors.Errorf("read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return xerrors.Errorf("execute migration %s: %w", name, err)
		}
	}
	return nil
}

// rowsIterator is an Iterator over a *sql.Rows result set. scan decodes one
// row; it differs per backend because of the time column encoding.
type rowsIterator struct {
	rows    *sql.Rows
	scan    func(*sql.Rows) (model.PlayerRecord, error)
	lastErr error
	latched model.PlayerRecord
}

func (i *rowsIterator) Next() bool {
	if i.lastErr != nil || !i.rows.Next() {
		return false
	}
	rec, err := i.scan(i.rows)
	if err != nil {
		i.lastErr = err
		return false
	}
	i.latched = rec
	return true
}

func (i *rowsIterator) Error() error {
	if i.lastErr != nil {
		return i.lastErr
	}
	return i.rows.Err()
}

func (i *rowsIterator) Close() error {
	if err := i.rows.Close(); err != nil {
		return xerrors.Errorf("record iterator: %w", err)
	}
	return nil
}

func (i *rowsIterator) Record() model.PlayerRecord {
	return i.latched
}
