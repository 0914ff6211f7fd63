// Package strata implements the Strata Estimator: a logarithmic ladder of
// small IBLTs that cheaply estimates the symmetric-difference size between
// two peers' key sets before they commit to a real IBLT exchange size.
package strata

import (
	"fmt"

	"github.com/riftsync/riftsync/iblt"
	"github.com/riftsync/riftsync/tabhash"
)

// DefaultLevels is L's recommended default, 32.
const DefaultLevels = 32

// CellsPerStratum and SubTablesPerStratum fix each stratum's own small
// IBLT capacity: 80 cells requested across 3 sub-tables, which
// iblt.NewTable rounds up to 81 cells, 27 per sub-table (distinct from the
// much larger real data IBLT).
const (
	CellsPerStratum     = 80
	SubTablesPerStratum = 3
)

// assignDiscriminator is the tabhash.DeriveSeed discriminator used for the
// hasher that decides which stratum a key falls into; chosen far from the
// small discriminators (0, 1, 2, ...) an iblt.Scheme itself uses so the
// two hasher families never collide.
const assignDiscriminator = ^uint64(0) - 1

// strataTableDiscriminatorBase offsets each stratum's own iblt.Scheme seed
// derivation so no stratum's sub-hashers collide with the assignment
// hasher or with another stratum's.
const strataTableDiscriminatorBase = 1 << 20

// Estimator is a peer's ladder of L small IBLTs.
type Estimator struct {
	NParties int
	KeyBits  int
	HashBits int
	Seed     uint64
	Levels   []*iblt.Table

	assign *tabhash.Hasher
}

// New builds an empty estimator of levels strata for the given session
// parameters.
func New(nParties, keyBits, hashBits int, seed uint64, levels int) *Estimator {
	if levels <= 0 {
		levels = DefaultLevels
	}
	keyBytes := (keyBits + 7) / 8
	e := &Estimator{
		NParties: nParties,
		KeyBits:  keyBits,
		HashBits: hashBits,
		Seed:     seed,
		Levels:   make([]*iblt.Table, levels),
		assign:   tabhash.New(tabhash.DeriveSeed(seed, assignDiscriminator), keyBytes),
	}
	for t := 0; t < levels; t++ {
		stratumSeed := tabhash.DeriveSeed(seed, uint64(strataTableDiscriminatorBase+t))
		scheme := iblt.NewScheme(nParties, keyBits, hashBits, SubTablesPerStratum, stratumSeed)
		e.Levels[t] = iblt.NewTable(scheme, CellsPerStratum)
	}
	return e
}

// stratumFor returns t = trailing_zero_count(hash(k)), clamped to L-1.
func (e *Estimator) stratumFor(key uint64) int {
	l := len(e.Levels)
	t := tabhash.TrailingZeros64(e.assign.Hash(key))
	if t > l-1 {
		t = l - 1
	}
	return t
}

// Insert samples key into its stratum.
func (e *Estimator) Insert(key uint64) {
	e.Levels[e.stratumFor(key)].Insert(key)
}

// Estimate runs the Eppstein/Goodrich/Uyeda/Varghese descending estimator
// against a peer's estimator: starting from the top stratum, subtract and
// peel each level, accumulating the raw peeled count. The first stratum F
// that fails to fully decode stops the descent; F itself and every stratum
// below it are excluded, and the accumulated raw count is scaled up once
// by 2^(F+1) (stratum t samples a fraction 2^-(t+1) of the true
// difference, so strata F+1..L-1 together sample a fraction 2^-(F+1), and
// their count stands in for the whole difference). If every stratum
// decodes, the raw count already covers the whole key space and is
// returned unscaled. It returns D_hat, the estimated |A△B|.
func (e *Estimator) Estimate(peer *Estimator) (uint64, error) {
	if len(e.Levels) != len(peer.Levels) {
		return 0, fmt.Errorf("strata: level count mismatch: %d vs %d", len(e.Levels), len(peer.Levels))
	}
	var raw uint64
	for t := len(e.Levels) - 1; t >= 0; t-- {
		diff, err := e.Levels[t].Subtract(peer.Levels[t])
		if err != nil {
			return 0, err
		}
		recovered, ok := diff.Peel()
		if !ok {
			scale := uint64(1) << uint(t+1)
			return raw * scale, nil
		}
		raw += uint64(len(recovered))
	}
	return raw, nil
}
