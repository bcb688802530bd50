package router

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rsloan/skillroute/pkg/types"
)

// DefaultProfileName is used when a query names no profile.
const DefaultProfileName = "precision"

// Profile maps a fused score to a confidence label. All nine fields are
// configuration; values live in [0, 1].
type Profile struct {
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
	HighBase        float64 `yaml:"high_base"`
	HighScale       float64 `yaml:"high_scale"`
	HighCap         float64 `yaml:"high_cap"`
	MediumBase      float64 `yaml:"medium_base"`
	MediumScale     float64 `yaml:"medium_scale"`
	MediumCap       float64 `yaml:"medium_cap"`
	LowFloor        float64 `yaml:"low_floor"`
}

// Validate enforces the ordering invariant
// high_threshold > medium_threshold > low_floor and the [0,1] range.
func (p Profile) Validate() error {
	fields := map[string]float64{
		"high_threshold":   p.HighThreshold,
		"medium_threshold": p.MediumThreshold,
		"high_base":        p.HighBase,
		"high_scale":       p.HighScale,
		"high_cap":         p.HighCap,
		"medium_base":      p.MediumBase,
		"medium_scale":     p.MediumScale,
		"medium_cap":       p.MediumCap,
		"low_floor":        p.LowFloor,
	}
	for name, v := range fields {
		if v < 0 || v > 1 {
			return fmt.Errorf("profile field %s out of range: %v", name, v)
		}
	}
	if !(p.HighThreshold > p.MediumThreshold && p.MediumThreshold > p.LowFloor) {
		return fmt.Errorf("profile ordering violated: high %v > medium %v > low_floor %v required",
			p.HighThreshold, p.MediumThreshold, p.LowFloor)
	}
	return nil
}

// Label buckets a fused score into a discrete confidence label.
func (p Profile) Label(finalScore float64) string {
	switch {
	case finalScore >= p.HighThreshold:
		return types.ConfidenceHigh
	case finalScore >= p.MediumThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

// Confidence maps a fused score to a continuous confidence value. Within
// the high and medium bands the curve is linear from the band's base,
// capped at the band's cap; below the medium band the score passes through
// unchanged. Non-negative scales keep the mapping monotonic.
func (p Profile) Confidence(finalScore float64) float64 {
	switch {
	case finalScore >= p.HighThreshold:
		return bandCurve(finalScore, p.HighThreshold, p.HighBase, p.HighScale, p.HighCap)
	case finalScore >= p.MediumThreshold:
		return bandCurve(finalScore, p.MediumThreshold, p.MediumBase, p.MediumScale, p.MediumCap)
	default:
		return finalScore
	}
}

func bandCurve(score, threshold, base, scale, cap float64) float64 {
	v := base + scale*(score-threshold)
	if v > cap {
		return cap
	}
	return v
}

// ProfileSet holds the named profiles available to a router instance.
type ProfileSet map[string]Profile

// Get resolves a profile by name; an empty name selects the default.
func (ps ProfileSet) Get(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfileName
	}
	p, ok := ps[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: unknown confidence profile %q", types.ErrRequestValidation, name)
	}
	return p, nil
}

// DefaultProfiles returns the built-in profile set.
func DefaultProfiles() ProfileSet {
	return ProfileSet{
		"precision": {
			HighThreshold:   0.65,
			MediumThreshold: 0.40,
			HighBase:        0.80,
			HighScale:       0.50,
			HighCap:         0.99,
			MediumBase:      0.50,
			MediumScale:     0.60,
			MediumCap:       0.79,
			LowFloor:        0.05,
		},
		"recall": {
			HighThreshold:   0.55,
			MediumThreshold: 0.25,
			HighBase:        0.70,
			HighScale:       0.60,
			HighCap:         0.95,
			MediumBase:      0.40,
			MediumScale:     0.60,
			MediumCap:       0.69,
			LowFloor:        0.01,
		},
	}
}

// profileFile is the YAML configuration layout:
//
//	profiles:
//	  precision:
//	    high_threshold: 0.65
//	    ...
type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles reads named profiles from a YAML file, layered over the
// built-in defaults so a partial file stays usable.
func LoadProfiles(path string) (ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	set := DefaultProfiles()
	for name, p := range f.Profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		set[name] = p
	}
	if _, ok := set[DefaultProfileName]; !ok {
		return nil, errors.New("profile configuration must keep the default profile")
	}
	return set, nil
}
