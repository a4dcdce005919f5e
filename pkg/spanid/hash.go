package spanid

import "github.com/cespare/xxhash/v2"

// ShardHash returns a stable 64-bit hash of id's canonical byte form,
// used to route a span to shard = ShardHash(id) % totalShards. xxhash is
// used rather than the Go runtime's map hash because it is stable across
// process restarts and architectures.
func ShardHash(id SpanId) uint64 {
	return xxhash.Sum64(id[:])
}

// Shard returns the shard index for id given totalShards. totalShards
// must be positive.
func Shard(id SpanId, totalShards int) int {
	return int(ShardHash(id) % uint64(totalShards))
}
