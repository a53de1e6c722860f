package run

import (
	"encoding/json"
	"fmt"
	"time"

	"goalcast/domain/core"
)

// Fingerprint pins everything a training run's outcome depends on, so two
// runs with equal fingerprints must produce equal artifacts.
type Fingerprint struct {
	Competition core.CompetitionID `json:"competition"`
	InputHash   core.Hash          `json:"input_hash"`
	ConfigHash  core.Hash          `json:"config_hash"`
	Seed        int64              `json:"seed"`
	CodeVersion string             `json:"code_version"`
	Fingerprint core.Hash          `json:"fingerprint"`
}

// NewFingerprint creates a fingerprint from determinism parameters
func NewFingerprint(competition core.CompetitionID, inputHash, configHash core.Hash, seed int64, codeVersion string) Fingerprint {
	data := fmt.Sprintf("competition:%s|input:%s|config:%s|seed:%d|code:%s",
		competition, inputHash, configHash, seed, codeVersion)
	return Fingerprint{
		Competition: competition,
		InputHash:   inputHash,
		ConfigHash:  configHash,
		Seed:        seed,
		CodeVersion: codeVersion,
		Fingerprint: core.NewHash([]byte(data)),
	}
}

// HashConfig hashes any JSON-encodable configuration value
func HashConfig(v interface{}) (core.Hash, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return core.NewHash(raw), nil
}

// Manifest identifies one training run of one competition
type Manifest struct {
	RunID       core.RunID  `json:"run_id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	StartedAt   time.Time   `json:"started_at"`
}

// NewManifest starts a run manifest
func NewManifest(fp Fingerprint, now time.Time) Manifest {
	return Manifest{RunID: core.NewRunID(), Fingerprint: fp, StartedAt: now.UTC()}
}
