// Package embedder turns query text into embedding vectors, surviving an
// unstable remote embedding service.
//
// # Architecture
//
// The Retriever is the package entry point. For each Embed call it works
// through four layers, returning at the first hit:
//
//  1. In-process LRU cache keyed by the SHA-256 of the text.
//  2. Persisted single-record cache at a fixed on-disk path. The record
//     survives process restarts; a stale or torn record is a miss, never
//     an error.
//  3. RPC transport: an ordered list of local (port, path) candidates,
//     probed under one shared wall-clock deadline for the whole loop. A
//     previously-successful endpoint is probed first.
//  4. HTTP transport: one configured base URL exposing a batch-embed
//     operation, attempted only after RPC exhaustion.
//
// When all four layers miss or fail, Embed returns
// types.ErrEmbeddingUnavailable.
//
// # Resilience State
//
// Per-endpoint backoff timestamps and the last-successful-endpoint pointer
// live in an explicitly constructed State, injected into the Retriever so
// tests can supply isolated instances. The state is advisory: correctness
// never depends on its freshness, only probe cost does. Backoff timestamps
// only move forward; re-recording a successful endpoint is idempotent.
//
// # Concurrency
//
// Multiple Embed calls may run in parallel and share the State and both
// cache tiers. Concurrent embeds of identical text are collapsed into one
// transport call via singleflight. The persisted record is written with a
// temp-file rename so concurrent writers can race without producing a
// readable torn record.
package embedder
