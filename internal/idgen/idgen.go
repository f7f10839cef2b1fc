// Package idgen generates the sortable, collision-resistant ids used
// for MemoryEntry.id and SessionChunk.chunk_id (spec.md §3's "128-bit
// identifier rendered as string"), backed by oklog/ulid.
package idgen

import "github.com/oklog/ulid/v2"

// New returns a fresh ULID string, monotonic within a process.
func New() string {
	return ulid.Make().String()
}
