package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// CompetitionID is the stable key of a league/competition, e.g. "E0".
	CompetitionID ID
	// RunID identifies one training run of one competition.
	RunID ID
)

func (id CompetitionID) String() string { return ID(id).String() }
func (id RunID) String() string         { return ID(id).String() }

// NewRunID returns a time-ordered run identifier
func NewRunID() RunID { return RunID(NewID()) }

// ParseCompetitionID validates a competition identifier. Identifiers are used
// as file name prefixes, so path separators and underscores are rejected.
func ParseCompetitionID(s string) (CompetitionID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("competition ID cannot be empty")
	}
	if strings.ContainsAny(s, `/\_ `) {
		return "", fmt.Errorf("competition ID %q contains reserved characters", s)
	}
	return CompetitionID(s), nil
}

// CompetitionFromFile derives the competition identifier from an input file
// name: everything before the first underscore, or the bare stem.
// "E0_merged.csv" -> "E0", "SP1.csv" -> "SP1".
func CompetitionFromFile(path string) (CompetitionID, error) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, "_"); i >= 0 {
		stem = stem[:i]
	}
	return ParseCompetitionID(stem)
}

// ProcessedFile is the file name of the competition's final feature table
func (id CompetitionID) ProcessedFile() string {
	return id.String() + "_merged_preprocessed.csv"
}
