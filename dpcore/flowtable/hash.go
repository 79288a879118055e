package flowtable

import (
	"hash/fnv"

	"github.com/vswitchd/dpcore/dpcore/flowkey"
)

// hashKey hashes the key's wire encoding with a stable hash function
// (spec §4.2). Using the same attribute-stream encoding flowkey already
// produces for the wire means the hash never needs to special-case Key's
// internal layout.
func hashKey(k flowkey.Key) uint64 {
	h := fnv.New64a()
	h.Write(flowkey.Encode(k))
	return h.Sum64()
}
