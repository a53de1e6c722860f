// Package db keeps the artifact index: one row per persisted artifact, in
// sqlite by default or PostgreSQL when the DSN says so.
package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the index database. postgres:// and postgresql:// DSNs
// use lib/pq; anything else is a sqlite file path.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	} else if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.PersistenceError("failed to create index directory", err)
		}
	}

	conn, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.PersistenceError(fmt.Sprintf("failed to open %s index", driver), err)
	}
	if driver == "sqlite" {
		// One writer at a time; concurrent competitions queue on the pool.
		conn.SetMaxOpenConns(1)
	}
	return conn, nil
}

// Index implements ports.ArtifactIndex over sqlx
type Index struct {
	db  *sqlx.DB
	log *logrus.Entry
}

// NewIndex wraps an open, migrated database
func NewIndex(db *sqlx.DB, log *logrus.Entry) *Index {
	return &Index{db: db, log: logging.Component(log, "artifact_index")}
}

// OpenIndex opens the database, runs migrations and returns the index
func OpenIndex(ctx context.Context, dsn string, log *logrus.Entry) (*Index, error) {
	conn, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	ran, err := NewMigrator(conn).Up(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	idx := NewIndex(conn, log)
	if ran > 0 {
		idx.log.WithField("migrations", ran).Info("[ArtifactIndex] schema migrated")
	}
	return idx, nil
}

// Close releases the connection pool
func (i *Index) Close() error {
	return i.db.Close()
}

const recordColumns = `run_id, competition, location, fingerprint, voting, metric,
	score_mean, score_std, feature_count, member_count, created_at`

// Record inserts one artifact row
func (i *Index) Record(ctx context.Context, r model.ArtifactRecord) error {
	r.CreatedAt = r.CreatedAt.UTC()
	_, err := i.db.NamedExecContext(ctx, `INSERT INTO artifact_runs (`+recordColumns+`) VALUES (
		:run_id, :competition, :location, :fingerprint, :voting, :metric,
		:score_mean, :score_std, :feature_count, :member_count, :created_at)`, r)
	if err != nil {
		return errors.PersistenceError(fmt.Sprintf("failed to index artifact %s", r.Competition), err)
	}
	i.log.WithFields(logrus.Fields{
		"competition": r.Competition,
		"run_id":      r.RunID,
	}).Debug("[ArtifactIndex] recorded")
	return nil
}

// Latest returns the newest record of a competition
func (i *Index) Latest(ctx context.Context, competition core.CompetitionID) (*model.ArtifactRecord, error) {
	var r model.ArtifactRecord
	err := i.db.GetContext(ctx, &r, i.db.Rebind(`SELECT `+recordColumns+` FROM artifact_runs
		WHERE competition = ? ORDER BY created_at DESC, run_id DESC LIMIT 1`), competition)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w %s", core.ErrArtifactNotFound, competition))
	}
	if err != nil {
		return nil, errors.PersistenceError("failed to query artifact index", err)
	}
	return &r, nil
}

// History returns up to limit records of a competition, newest first
func (i *Index) History(ctx context.Context, competition core.CompetitionID, limit int) ([]model.ArtifactRecord, error) {
	if limit < 1 {
		limit = 20
	}
	var out []model.ArtifactRecord
	err := i.db.SelectContext(ctx, &out, i.db.Rebind(`SELECT `+recordColumns+` FROM artifact_runs
		WHERE competition = ? ORDER BY created_at DESC, run_id DESC LIMIT ?`), competition, limit)
	if err != nil {
		return nil, errors.PersistenceError("failed to query artifact index", err)
	}
	return out, nil
}

// List returns the newest record of every competition, by competition
func (i *Index) List(ctx context.Context) ([]model.ArtifactRecord, error) {
	var all []model.ArtifactRecord
	err := i.db.SelectContext(ctx, &all, `SELECT `+recordColumns+` FROM artifact_runs
		ORDER BY competition, created_at DESC, run_id DESC`)
	if err != nil {
		return nil, errors.PersistenceError("failed to query artifact index", err)
	}
	var out []model.ArtifactRecord
	for _, r := range all {
		if len(out) > 0 && out[len(out)-1].Competition == r.Competition {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
