// Package testutil provides test data generators for riftsync: mainly
// synthetic file pairs with a controlled amount of difference between
// them, so tests can assert on sync behavior without depending on real
// corpora.
package testutil

import (
	"crypto/rand"
)

// FileOption customizes GenerateTestFile.
type FileOption func(*fileSpec)

type fileSpec struct {
	size int
	seed int64
}

// WithSize sets the generated file's size in bytes.
func WithSize(size int) FileOption {
	return func(s *fileSpec) { s.size = size }
}

// WithSeed pins the PRNG seed, for reproducible test fixtures.
func WithSeed(seed int64) FileOption {
	return func(s *fileSpec) { s.seed = seed }
}

// GenerateTestFile returns size bytes of pseudo-random content (default
// 64KiB), suitable as a baseline "file A" in a sync test.
func GenerateTestFile(options ...FileOption) []byte {
	spec := &fileSpec{size: 64 * 1024}
	for _, opt := range options {
		opt(spec)
	}
	buf := make([]byte, spec.size)
	deterministicRead(buf, spec.seed)
	return buf
}

// deterministicRead fills buf from a seeded xorshift64 stream when seed is
// non-zero, and from crypto/rand otherwise (seed 0 means "don't care").
func deterministicRead(buf []byte, seed int64) {
	if seed == 0 {
		rand.Read(buf)
		return
	}
	x := uint64(seed)
	for i := range buf {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		buf[i] = byte(x)
	}
}

// EditOption customizes GenerateSimilarFile.
type EditOption func(*editSpec)

type editSpec struct {
	runLength int
	at        int
}

// WithRunLength sets the length in bytes of the edited run.
func WithRunLength(n int) EditOption {
	return func(e *editSpec) { e.runLength = n }
}

// WithOffset pins the edit's starting offset instead of placing it at the
// file's midpoint.
func WithOffset(at int) EditOption {
	return func(e *editSpec) { e.at = at }
}

// GenerateSimilarFile returns a copy of base with a single contiguous run
// of bytes flipped, simulating the "two files differing in one small run"
// scenario the protocol is built to handle efficiently. The default run
// length is 32 bytes, placed at the file's midpoint.
func GenerateSimilarFile(base []byte, options ...EditOption) []byte {
	spec := &editSpec{runLength: 32, at: len(base) / 2}
	for _, opt := range options {
		opt(spec)
	}
	out := make([]byte, len(base))
	copy(out, base)

	end := spec.at + spec.runLength
	if end > len(out) {
		end = len(out)
	}
	for i := spec.at; i < end; i++ {
		out[i] ^= 0xFF
	}
	return out
}

// GenerateInsertedFile returns a copy of base with insertion spliced in at
// offset at, simulating a local insert/delete edit rather than an
// in-place byte flip — the scenario that most stresses a fixed-offset
// chunker but barely perturbs a content-defined one.
func GenerateInsertedFile(base []byte, at int, insertion []byte) []byte {
	if at > len(base) {
		at = len(base)
	}
	out := make([]byte, 0, len(base)+len(insertion))
	out = append(out, base[:at]...)
	out = append(out, insertion...)
	out = append(out, base[at:]...)
	return out
}

// GenerateRandomBytes returns n pseudo-random bytes, for building ad hoc
// fixtures (insertions, appended tails) outside the file generators above.
func GenerateRandomBytes(n int) []byte {
	buf := make([]byte, n)
	rand.Read(buf)
	return buf
}
