// Package artifact stores ensemble artifacts as JSON files on local disk
package artifact

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/logging"

	"github.com/sirupsen/logrus"
)

// Suffix is appended to the competition id to form the artifact file name
const Suffix = "_voting_ensemble.json"

// LocalStore keeps one artifact file per competition under basePath
type LocalStore struct {
	basePath string
	log      *logrus.Entry
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(basePath string, log *logrus.Entry) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.PersistenceError("failed to create models directory", err)
	}
	return &LocalStore{basePath: basePath, log: logging.Component(log, "artifact_store")}, nil
}

// Path returns the artifact file of a competition
func (s *LocalStore) Path(competition core.CompetitionID) string {
	return filepath.Join(s.basePath, competition.String()+Suffix)
}

// Save seals and writes the artifact. The file is written to a temp file
// in the same directory and renamed, so readers never see a partial
// artifact and a failed write leaves the previous one in place.
func (s *LocalStore) Save(ctx context.Context, a *model.Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Cancelled(err)
	}
	if err := a.Seal(); err != nil {
		return "", errors.PersistenceError("failed to fingerprint artifact", err)
	}
	content, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", errors.PersistenceError(fmt.Sprintf("failed to encode artifact %s", a.Competition), err)
	}

	path := s.Path(a.Competition)
	tmp, err := os.CreateTemp(s.basePath, ".artifact-*")
	if err != nil {
		return "", errors.PersistenceError("failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", errors.PersistenceError(fmt.Sprintf("failed to write %s", path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", errors.PersistenceError(fmt.Sprintf("failed to sync %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.PersistenceError(fmt.Sprintf("failed to close %s", path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.PersistenceError(fmt.Sprintf("failed to move artifact into %s", path), err)
	}

	s.log.WithFields(logrus.Fields{
		"competition": a.Competition,
		"fingerprint": a.Fingerprint.Short(),
		"bytes":       len(content),
	}).Info("[ArtifactStore] saved")
	return path, nil
}

// Load reads and validates an artifact. Member state is left serialised;
// restoring models is the caller's step and happens only after the format,
// version and fingerprint checks pass.
func (s *LocalStore) Load(ctx context.Context, competition core.CompetitionID) (*model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}
	path := s.Path(competition)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("%w %s", core.ErrArtifactNotFound, competition))
		}
		return nil, errors.PersistenceError(fmt.Sprintf("failed to read %s", path), err)
	}

	var a model.Artifact
	if err := json.Unmarshal(content, &a); err != nil {
		return nil, errors.PersistenceError(fmt.Sprintf("artifact %s is not valid JSON", path),
			fmt.Errorf("%w: %v", core.ErrIncompatibleArtifact, err))
	}
	if err := a.Validate(); err != nil {
		return nil, errors.PersistenceError(fmt.Sprintf("artifact %s failed validation", path), err)
	}
	if a.Competition != competition {
		return nil, errors.PersistenceError(fmt.Sprintf("artifact %s belongs to %s", path, a.Competition),
			core.ErrIncompatibleArtifact)
	}
	return &a, nil
}

// List returns the competitions with a stored artifact, sorted
func (s *LocalStore) List(ctx context.Context) ([]core.CompetitionID, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Cancelled(err)
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, errors.PersistenceError("failed to list models directory", err)
	}
	var out []core.CompetitionID
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, Suffix) {
			continue
		}
		id, err := core.ParseCompetitionID(strings.TrimSuffix(name, Suffix))
		if err != nil {
			s.log.WithError(err).Warnf("[ArtifactStore] skipping %s", name)
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// IsNotFound reports whether err means no artifact exists
func IsNotFound(err error) bool {
	return stderrors.Is(err, core.ErrNotFound)
}
