package backend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rsloan/skillroute/pkg/types"
)

// Payload schema versions. Every RawRow declares one; unknown versions are
// rejected outright, never best-effort-parsed.
const (
	SchemaNamespace = "skillroute"
	SchemaSearchV1  = "skillroute.search.v1"
	SchemaHybridV1  = "skillroute.hybrid.v1"
)

// supportedSchemaMajor gates payload versions via semver comparison.
const supportedSchemaMajor = 1

// legacyFields maps superseded payload field names to their canonical
// replacements. A payload carrying the old name is rejected rather than
// silently accepted.
var legacyFields = map[string]string{
	"tool_name": "command_name",
	"score":     "final_score",
}

// RawRow is the schema-versioned envelope the backend hands to the router.
type RawRow struct {
	Schema  string          `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// rowPayload is the canonical v1 payload shape.
type rowPayload struct {
	SkillName         string  `json:"skill_name"`
	CommandName       string  `json:"command_name"`
	VectorScore       float64 `json:"vector_score"`
	KeywordScore      float64 `json:"keyword_score"`
	FinalScore        float64 `json:"final_score"`
	RankingReason     string  `json:"ranking_reason,omitempty"`
	InputSchemaDigest string  `json:"input_schema_digest,omitempty"`
}

// newRow wraps a candidate payload in a versioned envelope, applying the
// optional field projection. Required identity and score fields always
// survive projection.
func newRow(schema string, p rowPayload, fields []string) (RawRow, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return RawRow{}, err
	}
	if len(fields) > 0 {
		data, err = projectFields(data, fields)
		if err != nil {
			return RawRow{}, err
		}
	}
	return RawRow{Schema: schema, Payload: data}, nil
}

// requiredFields always survive projection so a projected row still parses.
var requiredFields = []string{"skill_name", "command_name", "final_score"}

func projectFields(data []byte, fields []string) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(fields)+len(requiredFields))
	for _, f := range fields {
		keep[f] = true
	}
	for _, f := range requiredFields {
		keep[f] = true
	}
	out := make(map[string]json.RawMessage, len(keep))
	for k, v := range m {
		if keep[k] {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// ValidateSchema checks a payload schema string against the supported
// namespace and major version.
func ValidateSchema(schema string) error {
	parts := strings.Split(schema, ".")
	if len(parts) != 3 || parts[0] != SchemaNamespace {
		return fmt.Errorf("%w: unknown schema %q", types.ErrPayloadValidation, schema)
	}
	if parts[1] != "search" && parts[1] != "hybrid" {
		return fmt.Errorf("%w: unknown schema kind %q", types.ErrPayloadValidation, schema)
	}
	raw, ok := strings.CutPrefix(parts[2], "v")
	if !ok {
		return fmt.Errorf("%w: malformed schema version %q", types.ErrPayloadValidation, schema)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed schema version %q", types.ErrPayloadValidation, schema)
	}
	if v.Major() != supportedSchemaMajor {
		return fmt.Errorf("%w: unsupported schema version %q", types.ErrPayloadValidation, schema)
	}
	return nil
}

// ParseCandidate validates one envelope and converts it to a route
// candidate. Legacy-shaped payloads (a removed field present instead of
// its canonical replacement) are rejected, not coerced.
func ParseCandidate(row RawRow) (types.RouteCandidate, error) {
	var zero types.RouteCandidate

	if err := ValidateSchema(row.Schema); err != nil {
		return zero, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(row.Payload, &raw); err != nil {
		return zero, fmt.Errorf("%w: %v", types.ErrPayloadValidation, err)
	}
	for old, canonical := range legacyFields {
		if _, present := raw[old]; present {
			return zero, fmt.Errorf("%w: legacy field %q (use %q)",
				types.ErrPayloadValidation, old, canonical)
		}
	}

	var p rowPayload
	if err := json.Unmarshal(row.Payload, &p); err != nil {
		return zero, fmt.Errorf("%w: %v", types.ErrPayloadValidation, err)
	}

	c := types.RouteCandidate{
		SkillName:         p.SkillName,
		CommandName:       p.CommandName,
		VectorScore:       p.VectorScore,
		KeywordScore:      p.KeywordScore,
		FinalScore:        p.FinalScore,
		RankingReason:     p.RankingReason,
		InputSchemaDigest: p.InputSchemaDigest,
	}
	if err := c.Validate(); err != nil {
		return zero, fmt.Errorf("%w: incomplete payload", types.ErrPayloadValidation)
	}
	return c, nil
}
