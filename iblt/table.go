package iblt

import (
	"fmt"

	"github.com/riftsync/riftsync/gf"
	"github.com/riftsync/riftsync/tabhash"
)

// Scheme fixes every structural parameter two peers must agree on before
// an IBLT exchange is meaningful: the field (derived from n_parties), key
// and hash widths, the number of sub-tables, and the seeded hasher family
// that places keys and fingerprints them.
type Scheme struct {
	Field      *gf.Field
	NParties   int
	KeyBits    int
	HashBits   int
	NumHashfns int
	KeyCells   int
	HashCells  int
	Seed       uint64
	KeyHasher  *tabhash.Hasher
	SubHashers []*tabhash.Hasher
}

// NewScheme builds the field and hasher family for a session: the key
// hasher is derived with discriminator 0, sub-hasher i with discriminator
// i+1, per the placement rule in the driving specification.
func NewScheme(nParties, keyBits, hashBits, numHashfns int, seed uint64) *Scheme {
	field := gf.New(nParties)
	keyBytes := (keyBits + 7) / 8
	sch := &Scheme{
		Field:      field,
		NParties:   nParties,
		KeyBits:    keyBits,
		HashBits:   hashBits,
		NumHashfns: numHashfns,
		KeyCells:   field.Digits(keyBits),
		HashCells:  field.Digits(hashBits),
		Seed:       seed,
		KeyHasher:  tabhash.New(tabhash.DeriveSeed(seed, 0), keyBytes),
	}
	for i := 0; i < numHashfns; i++ {
		sch.SubHashers = append(sch.SubHashers, tabhash.New(tabhash.DeriveSeed(seed, uint64(i+1)), keyBytes))
	}
	return sch
}

// RoundUpBuckets rounds n up to the next multiple of numHashfns (at least
// numHashfns itself), satisfying the "num_buckets is a multiple of
// num_hashfns" structural invariant.
func RoundUpBuckets(n, numHashfns int) int {
	if n < numHashfns {
		n = numHashfns
	}
	r := n % numHashfns
	if r == 0 {
		return n
	}
	return n + (numHashfns - r)
}

// SizeForEstimate picks num_buckets from an estimated difference d using
// the recommended expansion factor alpha = 1.6, rounded up to a multiple
// of numHashfns.
func SizeForEstimate(d float64, numHashfns int) int {
	alpha := 1.6
	raw := int(alpha*d + 0.999999)
	if raw < numHashfns {
		raw = numHashfns
	}
	return RoundUpBuckets(raw, numHashfns)
}

// SizeForDifference applies the Strata Estimator's own sizing rule: the
// real data IBLT's capacity is 2*D_hat, rounded up to a multiple of
// numHashfns.
func SizeForDifference(dHat uint64, numHashfns int) int {
	return RoundUpBuckets(int(2*dHat), numHashfns)
}

// Table is a multi-subtable IBLT: NumHashfns sub-tables of BucketsPerSub
// buckets each.
type Table struct {
	Scheme        *Scheme
	BucketsPerSub int
	Sub           [][]Bucket
}

// NewTable allocates a table of numBuckets buckets (rounded up to a
// multiple of scheme.NumHashfns) split evenly across scheme.NumHashfns
// sub-tables.
func NewTable(scheme *Scheme, numBuckets int) *Table {
	n := scheme.NumHashfns
	total := RoundUpBuckets(numBuckets, n)
	perSub := total / n
	sub := make([][]Bucket, n)
	for i := range sub {
		sub[i] = make([]Bucket, perSub)
		for j := range sub[i] {
			sub[i][j] = NewBucket(scheme.Field, scheme.KeyCells, scheme.HashCells)
		}
	}
	return &Table{Scheme: scheme, BucketsPerSub: perSub, Sub: sub}
}

// NewTableFromBuckets wraps an already-populated bucket grid (e.g. one
// just decoded off the wire) in a Table, without re-zeroing it.
func NewTableFromBuckets(scheme *Scheme, bucketsPerSub int, sub [][]Bucket) *Table {
	return &Table{Scheme: scheme, BucketsPerSub: bucketsPerSub, Sub: sub}
}

// NumBuckets returns the table's total bucket count.
func (t *Table) NumBuckets() int {
	return t.Scheme.NumHashfns * t.BucketsPerSub
}

func (t *Table) subIndex(i int, key uint64) int {
	return int(t.Scheme.SubHashers[i].Hash(key) % uint64(t.BucketsPerSub))
}

func (t *Table) encode(key uint64) (keyElem, hashElem gf.Element) {
	f := t.Scheme.Field
	keyElem = f.Encode(key, t.Scheme.KeyBits)
	h := t.Scheme.KeyHasher.Hash(key)
	hashElem = f.Encode(h, t.Scheme.HashBits)
	return
}

// Insert places key into every sub-table's corresponding bucket with
// multiplicity +1.
func (t *Table) Insert(key uint64) {
	keyElem, hashElem := t.encode(key)
	f := t.Scheme.Field
	for i := 0; i < t.Scheme.NumHashfns; i++ {
		idx := t.subIndex(i, key)
		t.Sub[i][idx].AddSingle(f, keyElem, hashElem)
	}
}

// Remove removes key from every sub-table's corresponding bucket.
func (t *Table) Remove(key uint64) {
	keyElem, hashElem := t.encode(key)
	f := t.Scheme.Field
	for i := 0; i < t.Scheme.NumHashfns; i++ {
		idx := t.subIndex(i, key)
		t.Sub[i][idx].RemoveSingle(f, keyElem, hashElem)
	}
}

// StructurallyCompatible reports whether t and other agree on the shape a
// subtract requires: bucket/sub-table counts and key/hash widths. Seeds are
// checked separately by SeedsMatch.
func (t *Table) StructurallyCompatible(other *Table) bool {
	if t.Scheme.NumHashfns != other.Scheme.NumHashfns || t.BucketsPerSub != other.BucketsPerSub {
		return false
	}
	if t.Scheme.KeyBits != other.Scheme.KeyBits || t.Scheme.HashBits != other.Scheme.HashBits {
		return false
	}
	return true
}

// SeedsMatch reports whether t and other were built from the same base
// seed, i.e. their hasher families are identical.
func (t *Table) SeedsMatch(other *Table) bool {
	return t.Scheme.Seed == other.Scheme.Seed
}

// Subtract returns a new table whose buckets are t's buckets minus
// other's, cellwise, representing the signed multiset t - other.
func (t *Table) Subtract(other *Table) (*Table, error) {
	if !t.StructurallyCompatible(other) {
		return nil, fmt.Errorf("iblt: structural mismatch: buckets=%d/%d hashfns=%d/%d keybits=%d/%d hashbits=%d/%d",
			t.NumBuckets(), other.NumBuckets(), t.Scheme.NumHashfns, other.Scheme.NumHashfns,
			t.Scheme.KeyBits, other.Scheme.KeyBits, t.Scheme.HashBits, other.Scheme.HashBits)
	}
	if !t.SeedsMatch(other) {
		return nil, fmt.Errorf("iblt: hash seed mismatch: %d vs %d", t.Scheme.Seed, other.Scheme.Seed)
	}
	out := t.Clone()
	f := t.Scheme.Field
	for i := range out.Sub {
		for j := range out.Sub[i] {
			out.Sub[i][j].RemoveBucket(f, other.Sub[i][j])
		}
	}
	return out, nil
}

// Clone returns a deep, independent copy of t.
func (t *Table) Clone() *Table {
	sub := make([][]Bucket, len(t.Sub))
	for i, row := range t.Sub {
		sub[i] = make([]Bucket, len(row))
		for j, b := range row {
			sub[i][j] = b.Clone()
		}
	}
	return &Table{Scheme: t.Scheme, BucketsPerSub: t.BucketsPerSub, Sub: sub}
}

// PeeledKey is a key recovered by Peel, tagged with the signed
// multiplicity that witnessed it: +1 means present only on the minuend
// side of the subtraction, -1 only on the subtrahend side (beyond the
// 2-party case, any 1 <= |m| < n_parties can appear, with the same sign
// meaning).
type PeeledKey struct {
	Key  uint64
	Sign int
}

type cellRef struct {
	sub, idx int
}

// Peel runs the state-machine peeling decoder described in the driving
// design: scan for pure buckets, drain a FIFO work-queue (deduping by
// recovered key within the drain), subtract each recovered key's
// contribution from every cell it hashes to, re-enqueue any cell that
// becomes newly pure, and rescan until no new pure bucket appears. It
// mutates t in place; callers needing the pre-peel table must Clone first.
// ok is true iff every bucket is all-zero when the decoder terminates.
func (t *Table) Peel() (recovered []PeeledKey, ok bool) {
	f := t.Scheme.Field
	keyHash := t.Scheme.KeyHasher.Hash
	seen := make(map[uint64]bool)
	queued := make(map[cellRef]bool)
	var queue []cellRef

	enqueueIfPure := func(ref cellRef) {
		if queued[ref] {
			return
		}
		b := t.Sub[ref.sub][ref.idx]
		if _, _, isPure := pureMultiplicity(b, f, keyHash, t.Scheme.KeyBits, t.Scheme.HashBits, t.Scheme.NParties); isPure {
			queued[ref] = true
			queue = append(queue, ref)
		}
	}

	scanAll := func() bool {
		found := false
		for i := range t.Sub {
			for j := range t.Sub[i] {
				ref := cellRef{i, j}
				if queued[ref] {
					continue
				}
				b := t.Sub[i][j]
				if _, _, isPure := pureMultiplicity(b, f, keyHash, t.Scheme.KeyBits, t.Scheme.HashBits, t.Scheme.NParties); isPure {
					queued[ref] = true
					queue = append(queue, ref)
					found = true
				}
			}
		}
		return found
	}

	scanAll()
	for {
		for len(queue) > 0 {
			ref := queue[0]
			queue = queue[1:]
			delete(queued, ref)
			b := t.Sub[ref.sub][ref.idx]
			m, key, isPure := pureMultiplicity(b, f, keyHash, t.Scheme.KeyBits, t.Scheme.HashBits, t.Scheme.NParties)
			if !isPure {
				continue
			}
			if !seen[key] {
				seen[key] = true
				recovered = append(recovered, PeeledKey{Key: key, Sign: m})
			}
			keyElem := f.Encode(key, t.Scheme.KeyBits)
			hashElem := f.Encode(keyHash(key), t.Scheme.HashBits)
			for i := 0; i < t.Scheme.NumHashfns; i++ {
				idx := t.subIndex(i, key)
				t.Sub[i][idx].removeScaled(f, keyElem, hashElem, m)
				enqueueIfPure(cellRef{i, idx})
			}
		}
		if !scanAll() {
			break
		}
	}

	ok = true
	for i := range t.Sub {
		for j := range t.Sub[i] {
			if !t.Sub[i][j].IsZero() {
				ok = false
				break
			}
		}
		if !ok {
			break
		}
	}
	return recovered, ok
}
