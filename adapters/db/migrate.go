package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"goalcast/domain/core"
	"goalcast/internal/errors"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one forward-only schema step
type Migration struct {
	Version  string
	Name     string
	SQL      string
	Checksum core.Hash
}

// Migrator applies embedded migrations in version order and records them
// in schema_migrations. An applied migration whose file changed is an
// error rather than being re-run.
type Migrator struct {
	db *sqlx.DB
}

// NewMigrator creates a migrator
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{db: db}
}

// Migrations lists the embedded migrations in version order
func Migrations() ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(migrationFiles, "migrations", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}
		// 001_artifact_runs.sql
		parts := strings.SplitN(path.Base(p), "_", 2)
		if len(parts) < 2 {
			return nil
		}
		raw, err := migrationFiles.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, Migration{
			Version:  parts[0],
			Name:     strings.TrimSuffix(parts[1], ".sql"),
			SQL:      string(raw),
			Checksum: core.NewHash(raw),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies every pending migration and returns how many ran
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return 0, errors.PersistenceError("failed to create migrations table", err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, errors.PersistenceError("failed to read applied migrations", err)
	}
	migrations, err := Migrations()
	if err != nil {
		return 0, errors.PersistenceError("failed to load migrations", err)
	}

	ran := 0
	for _, mig := range migrations {
		if sum, ok := applied[mig.Version]; ok {
			if sum != mig.Checksum.String() {
				return ran, errors.PersistenceError(
					fmt.Sprintf("migration %s changed after it was applied", mig.Version), core.ErrHashMismatch)
			}
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return ran, errors.PersistenceError(fmt.Sprintf("failed to apply migration %s_%s", mig.Version, mig.Name), err)
		}
		ran++
	}
	return ran, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)`),
		mig.Version, mig.Checksum.String()); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *Migrator) applied(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, `SELECT version, checksum FROM schema_migrations`); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Version] = r.Checksum
	}
	return out, nil
}
