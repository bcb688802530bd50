package router

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rsloan/skillroute/pkg/types"
)

func TestProfileValidate(t *testing.T) {
	valid := DefaultProfiles()["precision"]

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr bool
	}{
		{name: "default precision is valid", mutate: func(p *Profile) {}},
		{name: "field above one", mutate: func(p *Profile) { p.HighCap = 1.5 }, wantErr: true},
		{name: "negative field", mutate: func(p *Profile) { p.LowFloor = -0.1 }, wantErr: true},
		{name: "thresholds inverted", mutate: func(p *Profile) { p.MediumThreshold = 0.9 }, wantErr: true},
		{name: "floor above medium", mutate: func(p *Profile) { p.LowFloor = 0.5 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProfileLabel(t *testing.T) {
	p := Profile{HighThreshold: 0.65, MediumThreshold: 0.40, LowFloor: 0.05}

	tests := []struct {
		score float64
		want  string
	}{
		{0.9, types.ConfidenceHigh},
		{0.65, types.ConfidenceHigh}, // boundary is inclusive
		{0.64, types.ConfidenceMedium},
		{0.40, types.ConfidenceMedium},
		{0.39, types.ConfidenceLow},
		{0.0, types.ConfidenceLow},
	}
	for _, tt := range tests {
		if got := p.Label(tt.score); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestProfileConfidenceMonotonic(t *testing.T) {
	p := DefaultProfiles()["precision"]

	prev := -1.0
	for score := 0.0; score <= 1.0; score += 0.01 {
		c := p.Confidence(score)
		if c < prev {
			t.Fatalf("confidence decreased at score %v: %v -> %v", score, prev, c)
		}
		prev = c
	}

	// The high band saturates at its cap.
	if got := p.Confidence(1.0); got > p.HighCap {
		t.Errorf("Confidence(1.0) = %v, exceeds cap %v", got, p.HighCap)
	}
}

func TestProfileSetGet(t *testing.T) {
	ps := DefaultProfiles()

	if _, err := ps.Get(""); err != nil {
		t.Errorf("empty name should select the default: %v", err)
	}
	if _, err := ps.Get("recall"); err != nil {
		t.Errorf("Get(recall) error = %v", err)
	}
	if _, err := ps.Get("bogus"); !errors.Is(err, types.ErrRequestValidation) {
		t.Errorf("unknown profile error = %v, want request validation", err)
	}
}

func TestLoadProfiles(t *testing.T) {
	dir := t.TempDir()

	t.Run("layered over defaults", func(t *testing.T) {
		path := filepath.Join(dir, "profiles.yaml")
		content := `profiles:
  strict:
    high_threshold: 0.80
    medium_threshold: 0.60
    high_base: 0.85
    high_scale: 0.50
    high_cap: 0.99
    medium_base: 0.55
    medium_scale: 0.50
    medium_cap: 0.84
    low_floor: 0.10
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		set, err := LoadProfiles(path)
		if err != nil {
			t.Fatalf("LoadProfiles() error = %v", err)
		}
		if _, ok := set["strict"]; !ok {
			t.Error("configured profile missing")
		}
		if _, ok := set[DefaultProfileName]; !ok {
			t.Error("defaults should survive layering")
		}
		if _, ok := set["recall"]; !ok {
			t.Error("built-in recall profile should survive layering")
		}
	})

	t.Run("invalid profile rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		content := `profiles:
  broken:
    high_threshold: 0.30
    medium_threshold: 0.60
    low_floor: 0.10
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadProfiles(path); err == nil {
			t.Error("inverted thresholds should fail to load")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadProfiles(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("missing file should error")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.yaml")
		if err := os.WriteFile(path, []byte("profiles: [not a map"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadProfiles(path); err == nil {
			t.Error("malformed yaml should error")
		}
	})
}
