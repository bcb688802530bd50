// Package backend defines the narrow search contract the router consumes
// and provides the SQLite reference implementation of it.
//
// # Contract
//
// The router only depends on the Searcher interface: vector search and
// hybrid (vector + keyword) search over a named collection of skill
// commands. Results cross the boundary as schema-versioned RawRow
// envelopes; rows with an unknown schema version or a legacy-shaped
// payload are rejected by ParseCandidate, never coerced.
//
// The Catalog interface is the write half: registering commands and
// invalidating collections. A Backend implements both. Implementations
// that satisfy only Searcher are valid router backends; the compile-time
// interface replaces any runtime capability probing.
//
// # SQLite implementation
//
// SQLiteBackend stores command rows (skill, command, description,
// keywords, embedding blob) per collection. The keyword leg uses FTS5
// BM25 ranking; the vector leg uses the sqlite-vec extension when the
// binary is built with the sqlite_vec tag, falling back to Go-side cosine
// similarity otherwise. Build-tag driver selection mirrors build_cgo.go
// and build_purego.go.
//
// # Scan profiles
//
// SearchOptions carries an adaptive scan profile selected by the
// requested result-window size: narrow windows use the small profile,
// wider ones the medium profile with larger batch and readahead sizes.
// The readahead factor widens the raw row window handed to hybrid fusion.
package backend
