// Package mcp exposes the routing engine to a tool-dispatch layer over the
// Model Context Protocol.
//
// Four tools are registered:
//
//   - route_query: route free-form query text to ranked skill-command
//     candidates with confidence labels.
//   - register_command: add or refresh one skill command in a collection,
//     embedding its routable text.
//   - invalidate_collection: drop cached routing results for a collection
//     after its underlying data changes, optionally deleting the
//     collection's stored commands as well.
//   - cache_stats: report result-cache hit/miss counters.
//
// The server speaks MCP on stdio; all logging goes to stderr. Routing
// failures follow the engine's contract: degraded backends produce empty
// result lists, and only an unavailable embedding service surfaces as a
// tool error.
package mcp
