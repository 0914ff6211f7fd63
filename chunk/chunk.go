// Package chunk implements the content-defined chunker: it turns a byte
// stream into the (block_key, offset, bytes) triples the synchronization
// protocol's block table is built from. Splits are decided by a bup-style
// rolling checksum rather than fixed offsets, so a small edit only shifts
// the one or two blocks around it instead of every block after it.
package chunk

import (
	"bufio"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/sha3"
)

const (
	rollWindow  = 64
	charOffset  = 31
	minBitsBelow = 5 // never split on fewer than 32 bytes worth of signal
)

// Block is one content-defined chunk of the input stream.
type Block struct {
	Key    uint64
	Offset uint64
	Bytes  []byte
}

// Chunker splits a stream into Blocks using a rolling checksum tuned to
// avgBlockSize.
type Chunker struct {
	r       *bufio.Reader
	bits    uint32
	minSize int
	maxSize int
	offset  uint64
	done    bool

	s1, s2 uint32
	window [rollWindow]byte
	wofs   int
}

// New returns a Chunker over r targeting avgBlockSize-byte blocks on
// average. avgBlockSize is rounded down to the nearest power of two to
// pick the number of trailing checksum bits a split requires.
func New(r io.Reader, avgBlockSize int) *Chunker {
	if avgBlockSize < 64 {
		avgBlockSize = 64
	}
	bits := uint32(0)
	for (1 << (bits + 1)) <= avgBlockSize {
		bits++
	}
	if bits < minBitsBelow {
		bits = minBitsBelow
	}
	c := &Chunker{
		r:       bufio.NewReader(r),
		bits:    bits,
		minSize: avgBlockSize / 4,
		maxSize: avgBlockSize * 8,
		s1:      rollWindow * charOffset,
		s2:      rollWindow * (rollWindow - 1) * charOffset,
	}
	return c
}

// rollByte admits one more byte into the rolling window and updates the
// two running sums the split decision reads.
func (c *Chunker) rollByte(b byte) {
	drop := c.window[c.wofs]
	c.s1 += uint32(b) - uint32(drop)
	c.s2 += c.s1 - uint32(rollWindow)*(uint32(drop)+charOffset)
	c.window[c.wofs] = b
	c.wofs = (c.wofs + 1) % rollWindow
}

// atSplitPoint reports whether the low c.bits bits of s2 are all set,
// bup's heuristic for "this is a good place to cut".
func (c *Chunker) atSplitPoint() bool {
	mask := uint32(1)<<c.bits - 1
	return c.s2&mask == mask
}

// Next returns the next block, or ok=false once the stream is exhausted.
func (c *Chunker) Next() (Block, bool, error) {
	if c.done {
		return Block{}, false, nil
	}
	var buf []byte
	for {
		b, err := c.r.ReadByte()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return Block{}, false, err
		}
		buf = append(buf, b)
		c.rollByte(b)
		if len(buf) >= c.maxSize {
			break
		}
		if len(buf) >= c.minSize && c.atSplitPoint() {
			break
		}
	}
	if len(buf) == 0 {
		return Block{}, false, nil
	}
	blk := Block{Key: blockKey(buf), Offset: c.offset, Bytes: buf}
	c.offset += uint64(len(buf))
	return blk, true, nil
}

// blockKey derives a 64-bit block key from a SHA3-256 digest of its
// contents, matching the hash_bits width the IBLT scheme expects.
func blockKey(b []byte) uint64 {
	sum := sha3.Sum256(b)
	return binary.LittleEndian.Uint64(sum[:8])
}

// All reads every remaining block from c.
func All(c *Chunker) ([]Block, error) {
	var blocks []Block
	for {
		blk, ok, err := c.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return blocks, nil
		}
		blocks = append(blocks, blk)
	}
}
