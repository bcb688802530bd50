// Package types provides shared type definitions for the skillroute engine.
//
// This package defines the domain types that cross component boundaries:
// routing queries, ranked route candidates, and the error taxonomy shared
// by the router, the embedding retriever, and the search backend.
//
// # Core Types
//
// Query is an immutable routing request:
//
//	q := types.Query{
//	    Text:       "git status",
//	    Collection: "skills",
//	    Limit:      5,
//	    Threshold:  0.3,
//	    Profile:    "precision",
//	    UseCache:   true,
//	}
//
// RouteCandidate is one ranked result. Candidates are derived values and
// read-only once constructed:
//
//	c := types.RouteCandidate{
//	    SkillName:   "git",
//	    CommandName: "status",
//	    FinalScore:  0.82,
//	    Confidence:  types.ConfidenceHigh,
//	}
//
// # Error Taxonomy
//
// The sentinel errors in errors.go classify every failure mode the engine
// produces. All of them except ErrEmbeddingUnavailable are absorbed at the
// router boundary and converted to an empty result list; callers match them
// with errors.Is:
//
//	if errors.Is(err, types.ErrEmbeddingUnavailable) {
//	    // all embedding transports exhausted or in backoff
//	}
package types
