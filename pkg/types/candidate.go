package types

// Confidence labels, ordered from strongest to weakest.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Query is a normalized routing request. Values are fixed at construction
// and never mutated by the engine.
type Query struct {
	Text       string
	Collection string
	Limit      int     // Maximum candidates to return (1-100)
	Threshold  float64 // Minimum final score for the first attempt
	Profile    string  // Confidence profile name; empty selects the default
	UseCache   bool
}

// RouteCandidate is one ranked routing result: the skill-command pair that
// should handle the query, with its fused score and confidence label.
// Candidates are derived values and read-only once constructed.
type RouteCandidate struct {
	SkillName         string  `json:"skill_name"`
	CommandName       string  `json:"command_name"`
	VectorScore       float64 `json:"vector_score"`
	KeywordScore      float64 `json:"keyword_score"`
	FinalScore        float64 `json:"final_score"`
	Confidence        string  `json:"confidence"`
	RankingReason     string  `json:"ranking_reason"`
	InputSchemaDigest string  `json:"input_schema_digest,omitempty"`
}

// Validate checks structural invariants of a candidate.
func (c *RouteCandidate) Validate() error {
	if c.SkillName == "" || c.CommandName == "" {
		return ErrPayloadValidation
	}
	if c.FinalScore < 0 || c.FinalScore > 1 {
		return ErrPayloadValidation
	}
	return nil
}
