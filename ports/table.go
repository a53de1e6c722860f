package ports

import (
	"context"

	"goalcast/domain/match"
)

// TableReader loads a source table of one competition
type TableReader interface {
	Read(ctx context.Context, path string) (*match.Frame, error)
}

// TableWriter persists a final feature table
type TableWriter interface {
	Write(ctx context.Context, path string, table *match.Table) error
}
