package ports

import (
	"context"

	"goalcast/domain/core"
	"goalcast/domain/model"
)

// ArtifactStore persists one ensemble artifact per competition. Save
// replaces the previous artifact of the same competition atomically.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *model.Artifact) (location string, err error)
	Load(ctx context.Context, competition core.CompetitionID) (*model.Artifact, error)
	List(ctx context.Context) ([]core.CompetitionID, error)
}

// ArtifactIndex records every persisted artifact so runs can be audited
type ArtifactIndex interface {
	Record(ctx context.Context, record model.ArtifactRecord) error
	Latest(ctx context.Context, competition core.CompetitionID) (*model.ArtifactRecord, error)
	List(ctx context.Context) ([]model.ArtifactRecord, error)
	History(ctx context.Context, competition core.CompetitionID, limit int) ([]model.ArtifactRecord, error)
}
