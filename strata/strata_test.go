package strata

import (
	"math/rand"
	"testing"
)

func TestEstimateIdenticalSetsIsZero(t *testing.T) {
	a := New(2, 64, 64, 42, DefaultLevels)
	b := New(2, 64, 64, 42, DefaultLevels)
	for _, k := range []uint64{1, 2, 3, 4, 5, 6, 7} {
		a.Insert(k)
		b.Insert(k)
	}
	d, err := a.Estimate(b)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if d != 0 {
		t.Errorf("Estimate of identical sets = %d, want 0", d)
	}
}

func TestEstimateErrorWithinTwiceTrueDifferencePlusEight(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	trials := 200
	successes := 0
	for trial := 0; trial < trials; trial++ {
		d := 1 + rng.Intn(200)
		a := New(2, 64, 64, 42, DefaultLevels)
		b := New(2, 64, 64, 42, DefaultLevels)
		used := make(map[uint64]bool)
		nextKey := func() uint64 {
			for {
				k := rng.Uint64()
				if !used[k] {
					used[k] = true
					return k
				}
			}
		}
		for i := 0; i < d; i++ {
			a.Insert(nextKey())
		}
		for i := 0; i < 50; i++ {
			k := nextKey()
			a.Insert(k)
			b.Insert(k)
		}
		got, err := a.Estimate(b)
		if err != nil {
			t.Fatalf("Estimate: %v", err)
		}
		bound := uint64(2*d + 8)
		diff := int64(got) - int64(d)
		if diff < 0 {
			diff = -diff
		}
		if uint64(diff) <= bound {
			successes++
		}
	}
	if float64(successes)/float64(trials) < 0.90 {
		t.Errorf("estimator error within 2*d+8 in %d/%d trials, want >= 90%%", successes, trials)
	}
}

func TestStratumAssignmentDeterministic(t *testing.T) {
	a := New(2, 64, 64, 7, DefaultLevels)
	b := New(2, 64, 64, 7, DefaultLevels)
	for k := uint64(0); k < 500; k++ {
		if a.stratumFor(k) != b.stratumFor(k) {
			t.Fatalf("stratum assignment differs for key %d across identically-seeded estimators", k)
		}
	}
}
