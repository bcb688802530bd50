// Package router fuses vector-similarity and keyword signals into ranked,
// confidence-labeled route candidates.
//
// # Flow
//
// RouteHybrid executes a strict pipeline per call: result-cache check,
// query embedding, hybrid backend search, payload validation, confidence
// labeling, threshold filtering with adaptive retry, descending sort,
// cache write. Each retry lowers the acceptance threshold by a fixed step
// (never below zero) and issues a fresh backend call.
//
// # Failure semantics
//
// Request validation problems, malformed payload rows, missing collections
// and opaque backend failures never escape RouteHybrid: they are logged
// with a stable error_code attribute and degrade to an empty result list.
// The single propagated failure is types.ErrEmbeddingUnavailable, because
// substituting a zero vector would produce confidently wrong rankings
// instead of an honest error.
//
// # Confidence profiles
//
// A Profile maps a fused score to the discrete high/medium/low label plus
// a continuous confidence value within each band. Profiles are named,
// loaded from YAML configuration, and selectable per call; "precision" is
// the built-in default.
package router
