// Package batch provides helpers for MCP tools that act on several ids in
// one call.
//
// ParseStringOrArray accepts "id", ["id1", "id2"] or a JSON-encoded array.
// ProcessBatch runs an operation per id, keeps going after individual
// failures and skips what is left once the request context is done.
// FormatResults renders the per-id outcome with totals.
package batch
