package model

import (
	"encoding/json"
	"fmt"
	"time"

	"goalcast/domain/core"
)

// Artifact envelope identity. A reader refuses any other format or a
// version it does not know before touching member state.
const (
	ArtifactFormat  = "goalcast.voting_ensemble"
	ArtifactVersion = 1
)

// MemberState is one fitted ensemble member in serialised form
type MemberState struct {
	Family FamilyTag       `json:"family"`
	Params Params          `json:"params"`
	Score  Score           `json:"score"`
	State  json.RawMessage `json:"state"`
}

// Artifact is the versioned, self-describing form of a fitted ensemble
type Artifact struct {
	Format        string             `json:"format"`
	Version       int                `json:"version"`
	Competition   core.CompetitionID `json:"competition"`
	RunID         core.RunID         `json:"run_id"`
	CreatedAt     time.Time          `json:"created_at"`
	Label         string             `json:"label"`
	GoalThreshold float64            `json:"goal_threshold"`
	Metric        Metric             `json:"metric"`
	Voting        Voting             `json:"voting"`
	Features      []string           `json:"features"`
	FeatureHash   core.Hash          `json:"feature_hash"`
	Score         Score              `json:"score"`
	Members       []MemberState      `json:"members"`
	Fingerprint   core.Hash          `json:"fingerprint"`
}

// ComputeFingerprint hashes everything a restored model depends on:
// the feature order, the voting rule and every member's state.
func (a *Artifact) ComputeFingerprint() (core.Hash, error) {
	payload := struct {
		Features []string      `json:"features"`
		Voting   Voting        `json:"voting"`
		Members  []MemberState `json:"members"`
	}{a.Features, a.Voting, a.Members}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return core.NewHash(raw), nil
}

// Seal stamps the envelope identity and fingerprint
func (a *Artifact) Seal() error {
	a.Format = ArtifactFormat
	a.Version = ArtifactVersion
	a.FeatureHash = core.ComputeFeatureHash(a.Features)
	fp, err := a.ComputeFingerprint()
	if err != nil {
		return err
	}
	a.Fingerprint = fp
	return nil
}

// Validate checks compatibility and integrity without deserialising members
func (a *Artifact) Validate() error {
	if a.Format != ArtifactFormat {
		return fmt.Errorf("%w: format %q", core.ErrIncompatibleArtifact, a.Format)
	}
	if a.Version != ArtifactVersion {
		return fmt.Errorf("%w: version %d, reader supports %d", core.ErrIncompatibleArtifact, a.Version, ArtifactVersion)
	}
	if len(a.Members) == 0 {
		return fmt.Errorf("%w: no members", core.ErrIncompatibleArtifact)
	}
	if len(a.Features) == 0 {
		return fmt.Errorf("%w: no features", core.ErrIncompatibleArtifact)
	}
	if _, err := ParseVoting(string(a.Voting)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrIncompatibleArtifact, err)
	}
	if core.ComputeFeatureHash(a.Features) != a.FeatureHash {
		return fmt.Errorf("%w: feature list of artifact %s", core.ErrHashMismatch, a.Competition)
	}
	fp, err := a.ComputeFingerprint()
	if err != nil {
		return err
	}
	if fp != a.Fingerprint {
		return fmt.Errorf("%w: artifact %s", core.ErrHashMismatch, a.Competition)
	}
	return nil
}

// ArtifactRecord is the index entry of one persisted artifact
type ArtifactRecord struct {
	Competition core.CompetitionID `db:"competition" json:"competition"`
	RunID       core.RunID         `db:"run_id" json:"run_id"`
	Location    string             `db:"location" json:"location"`
	Fingerprint core.Hash          `db:"fingerprint" json:"fingerprint"`
	Voting      Voting             `db:"voting" json:"voting"`
	Metric      Metric             `db:"metric" json:"metric"`
	ScoreMean   float64            `db:"score_mean" json:"score_mean"`
	ScoreStd    float64            `db:"score_std" json:"score_std"`
	Features    int                `db:"feature_count" json:"feature_count"`
	Members     int                `db:"member_count" json:"member_count"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
}

// RecordOf summarises an artifact for the index
func RecordOf(a *Artifact, location string) ArtifactRecord {
	return ArtifactRecord{
		Competition: a.Competition,
		RunID:       a.RunID,
		Location:    location,
		Fingerprint: a.Fingerprint,
		Voting:      a.Voting,
		Metric:      a.Metric,
		ScoreMean:   a.Score.Mean,
		ScoreStd:    a.Score.Std,
		Features:    len(a.Features),
		Members:     len(a.Members),
		CreatedAt:   a.CreatedAt,
	}
}
