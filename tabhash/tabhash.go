// Package tabhash implements tabulation hashing: a deterministic, seedable
// hash family built from small per-byte lookup tables, XOR-combined. Two
// hashers built from the same seed produce identical hashes for identical
// inputs, which is the property the peeling decoder's sub-hashers and
// key-hasher both depend on across peers.
package tabhash

import (
	"encoding/binary"
	"math/rand"

	"github.com/dchest/siphash"
)

// HashBits is the fixed output width used throughout this module.
const HashBits = 64

// Hasher is a tabulation hash over keyBytes-byte keys producing a
// HashBits-bit output.
type Hasher struct {
	seed     uint64
	keyBytes int
	tables   [][256]uint64
}

// New builds a Hasher for keys of keyBytes bytes, seeded by seed. Each
// byte position i gets its own 256-entry table, derived from seed and i
// via siphash so the derivation is a fixed, documented, injective
// combinator rather than a bare XOR of small integers.
func New(seed uint64, keyBytes int) *Hasher {
	if keyBytes <= 0 {
		panic("tabhash: keyBytes must be positive")
	}
	h := &Hasher{seed: seed, keyBytes: keyBytes, tables: make([][256]uint64, keyBytes)}
	for i := 0; i < keyBytes; i++ {
		tableSeed := siphash.Hash(seed, uint64(i), tableSeedNonce(seed, i))
		src := rand.NewSource(int64(tableSeed))
		rng := rand.New(src)
		for v := 0; v < 256; v++ {
			h.tables[i][v] = rng.Uint64()
		}
	}
	return h
}

// tableSeedNonce derives the siphash message bytes for deriving table i's
// seed from the hasher's seed: an 8-byte little-endian encoding of i, so
// the (seed, i) -> tableSeed map is fixed and reproducible across peers.
func tableSeedNonce(seed uint64, i int) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(i))
	return buf
}

// DeriveSeed derives a per-role seed from a session base seed and a small
// integer discriminator (0 for the key hasher, i+1 for sub-hasher i), via
// siphash so the combinator is fixed, documented and far from a bare XOR
// of small integers.
func DeriveSeed(base uint64, discriminator uint64) uint64 {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, discriminator)
	return siphash.Hash(base, discriminator, buf)
}

// Seed returns the seed this hasher was constructed with.
func (h *Hasher) Seed() uint64 { return h.seed }

// Hash computes the tabulation hash of key, a keyBytes-byte little-endian
// encoded value: XOR of T[i][key byte i] across all byte positions.
func (h *Hasher) Hash(key uint64) uint64 {
	var out uint64
	for i := 0; i < h.keyBytes; i++ {
		b := byte(key >> (8 * i))
		out ^= h.tables[i][b]
	}
	return out
}

// TrailingZeros64 returns the number of trailing zero bits of x (64 for
// x == 0); the strata estimator applies it to a key's hash to assign the
// key to a stratum.
func TrailingZeros64(x uint64) int {
	if x == 0 {
		return 64
	}
	n := 0
	for x&1 == 0 {
		n++
		x >>= 1
	}
	return n
}
