// Package iblt implements the multi-party Invertible Bloom Lookup Table:
// buckets of field-element sums, arranged into sub-tables, supporting
// insert, remove, subtract and the peeling decoder that recovers a
// symmetric difference from a subtracted sketch.
package iblt

import "github.com/riftsync/riftsync/gf"

// Bucket is the triple (key_sum, hash_sum, count). A bucket is "pure
// positive" when count == 1 and hash(key_sum) == hash_sum; for multi-party
// decoding, "pure at multiplicity m" generalizes that to count == m with
// both sums divisible by m and hash agreement after division.
type Bucket struct {
	KeySum  gf.Element
	HashSum gf.Element
	Count   int
}

// NewBucket returns a zero bucket with keyCells key-sum cells and
// hashCells hash-sum cells.
func NewBucket(field *gf.Field, keyCells, hashCells int) Bucket {
	return Bucket{KeySum: field.Zero(keyCells), HashSum: field.Zero(hashCells)}
}

// AddSingle adds one occurrence of a (key, hash) pair already encoded as
// field elements.
func (b *Bucket) AddSingle(field *gf.Field, keyElem, hashElem gf.Element) {
	b.KeySum = field.Add(b.KeySum, keyElem)
	b.HashSum = field.Add(b.HashSum, hashElem)
	b.Count++
}

// RemoveSingle is the inverse of AddSingle.
func (b *Bucket) RemoveSingle(field *gf.Field, keyElem, hashElem gf.Element) {
	b.KeySum = field.Sub(b.KeySum, keyElem)
	b.HashSum = field.Sub(b.HashSum, hashElem)
	b.Count--
}

// AddBucket adds another bucket's fields cellwise.
func (b *Bucket) AddBucket(field *gf.Field, other Bucket) {
	b.KeySum = field.Add(b.KeySum, other.KeySum)
	b.HashSum = field.Add(b.HashSum, other.HashSum)
	b.Count += other.Count
}

// RemoveBucket subtracts another bucket's fields cellwise.
func (b *Bucket) RemoveBucket(field *gf.Field, other Bucket) {
	b.KeySum = field.Sub(b.KeySum, other.KeySum)
	b.HashSum = field.Sub(b.HashSum, other.HashSum)
	b.Count -= other.Count
}

// removeScaled subtracts the triple (m*keyElem, m*hashElem, m) from the
// bucket, for any signed m; used by the peeling decoder to cancel a
// recovered key's contribution out of every cell it hashes to.
func (b *Bucket) removeScaled(field *gf.Field, keyElem, hashElem gf.Element, m int) {
	b.KeySum = field.Sub(b.KeySum, scaleElement(field, keyElem, m))
	b.HashSum = field.Sub(b.HashSum, scaleElement(field, hashElem, m))
	b.Count -= m
}

func scaleElement(field *gf.Field, e gf.Element, m int) gf.Element {
	p := int(field.P)
	mm := ((m % p) + p) % p
	out := field.Zero(len(e.Cells))
	for i, cell := range e.Cells {
		out.Cells[i] = byte((int(cell) * mm) % p)
	}
	return out
}

// IsZero reports whether the bucket is in its all-zero state.
func (b Bucket) IsZero() bool {
	return b.Count == 0 && b.KeySum.IsZero() && b.HashSum.IsZero()
}

// Clone returns an independent copy of b.
func (b Bucket) Clone() Bucket {
	return Bucket{KeySum: b.KeySum.Clone(), HashSum: b.HashSum.Clone(), Count: b.Count}
}

func abs(m int) int {
	if m < 0 {
		return -m
	}
	return m
}

// pureMultiplicity searches m = 1, -1, 2, -2, ... n_parties-1, -(n_parties-1)
// (ascending by |m|, positive before negative on ties) for the first m
// under which b is pure, per the §3/§4.C predicate. It returns the
// witnessed key alongside m.
func pureMultiplicity(b Bucket, field *gf.Field, keyHasher hasherFunc, keyBits, hashBits, nParties int) (m int, key uint64, ok bool) {
	for mag := 1; mag < nParties; mag++ {
		for _, cand := range [2]int{mag, -mag} {
			if b.Count != cand {
				continue
			}
			p := int(field.P)
			div := ((cand % p) + p) % p // cand as a field element, so -m divides by p-m
			if !field.CanDivideBy(b.KeySum, div) || !field.CanDivideBy(b.HashSum, div) {
				continue
			}
			k := field.ExtractKey(b.KeySum, div, keyBits)
			hsum := field.ExtractKey(b.HashSum, div, hashBits)
			if keyHasher(k) == hsum {
				return cand, k, true
			}
		}
	}
	return 0, 0, false
}

type hasherFunc func(uint64) uint64
