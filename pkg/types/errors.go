package types

import "errors"

// Failure classification for the routing engine. Stable error codes logged
// at the router boundary are derived from these sentinels via ErrorCode.
var (
	// ErrRequestValidation indicates an out-of-range limit, empty query
	// text, or empty collection name.
	ErrRequestValidation = errors.New("invalid routing request")

	// ErrBindingContract indicates a backend implementation lacks a
	// capability the router requires.
	ErrBindingContract = errors.New("backend missing required capability")

	// ErrPayloadValidation indicates a malformed or legacy-shaped backend
	// row. Rows failing validation are dropped, never coerced.
	ErrPayloadValidation = errors.New("invalid backend payload")

	// ErrCollectionNotFound is benign: the collection simply has no data.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrBackendRuntime wraps opaque backend failures.
	ErrBackendRuntime = errors.New("backend runtime failure")

	// ErrEmbeddingUnavailable indicates every embedding transport is
	// exhausted or in backoff. This is the only error the router propagates.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// ErrorCode returns the stable log code for a classified error, or "unknown"
// for errors outside the taxonomy.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrRequestValidation):
		return "request_validation"
	case errors.Is(err, ErrBindingContract):
		return "binding_contract"
	case errors.Is(err, ErrPayloadValidation):
		return "payload_validation"
	case errors.Is(err, ErrCollectionNotFound):
		return "collection_not_found"
	case errors.Is(err, ErrBackendRuntime):
		return "backend_runtime"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "embedding_unavailable"
	default:
		return "unknown"
	}
}
