package run

import (
	"testing"
	"time"

	"goalcast/domain/core"
)

func TestFingerprint_Deterministic(t *testing.T) {
	fp1 := NewFingerprint("E0", core.Hash("input"), core.Hash("config"), 42, "1.0.0")
	fp2 := NewFingerprint("E0", core.Hash("input"), core.Hash("config"), 42, "1.0.0")

	if fp1.Fingerprint != fp2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1.Fingerprint, fp2.Fingerprint)
	}
	if fp1.Seed != 42 {
		t.Errorf("Seed mismatch: %d vs 42", fp1.Seed)
	}
}

func TestFingerprint_Unique(t *testing.T) {
	base := NewFingerprint("E0", core.Hash("input"), core.Hash("config"), 42, "1.0.0")
	variants := []Fingerprint{
		NewFingerprint("SP1", core.Hash("input"), core.Hash("config"), 42, "1.0.0"),
		NewFingerprint("E0", core.Hash("other"), core.Hash("config"), 42, "1.0.0"),
		NewFingerprint("E0", core.Hash("input"), core.Hash("other"), 42, "1.0.0"),
		NewFingerprint("E0", core.Hash("input"), core.Hash("config"), 43, "1.0.0"),
		NewFingerprint("E0", core.Hash("input"), core.Hash("config"), 42, "1.0.1"),
	}
	for i, v := range variants {
		if v.Fingerprint == base.Fingerprint {
			t.Errorf("variant %d collides with the base fingerprint", i)
		}
	}
}

func TestHashConfig(t *testing.T) {
	a, err := HashConfig(map[string]int{"k": 20})
	if err != nil {
		t.Fatalf("HashConfig: %v", err)
	}
	b, _ := HashConfig(map[string]int{"k": 20})
	c, _ := HashConfig(map[string]int{"k": 21})
	if a != b || a == c {
		t.Errorf("config hashes not stable: %s %s %s", a, b, c)
	}
}

func TestNewManifest(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("X", 3600))
	m := NewManifest(NewFingerprint("E0", "", "", 1, "dev"), now)
	if m.RunID.String() == "" {
		t.Error("expected a run id")
	}
	if m.StartedAt.Location() != time.UTC {
		t.Error("expected UTC start time")
	}
}
