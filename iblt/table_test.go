package iblt

import (
	"sort"
	"testing"
)

func newTestScheme() *Scheme {
	return NewScheme(2, 64, 64, 4, 12345)
}

func TestInsertRemoveRestoresZero(t *testing.T) {
	scheme := newTestScheme()
	table := NewTable(scheme, 32)
	keys := []uint64{1, 2, 3, 999999, 0}
	for _, k := range keys {
		table.Insert(k)
	}
	for _, k := range keys {
		table.Remove(k)
	}
	for i := range table.Sub {
		for j, b := range table.Sub[i] {
			if !b.IsZero() {
				t.Fatalf("bucket [%d][%d] not zero after insert+remove of same keys", i, j)
			}
		}
	}
}

func TestInsertRemoveOrderIndependent(t *testing.T) {
	scheme := newTestScheme()
	a := NewTable(scheme, 32)
	a.Insert(7)
	a.Remove(7)
	b := NewTable(scheme, 32)
	b.Remove(7) // counts go negative then back to zero; order shouldn't matter for the net effect
	b.Insert(7)
	for i := range a.Sub {
		for j := range a.Sub[i] {
			if !a.Sub[i][j].IsZero() || !b.Sub[i][j].IsZero() {
				t.Fatalf("bucket [%d][%d] not restored to zero", i, j)
			}
		}
	}
}

func TestSubtractPeelRecoversSymmetricDifference(t *testing.T) {
	scheme := newTestScheme()
	a := NewTable(scheme, 64)
	b := NewTable(scheme, 64)

	onlyA := []uint64{10, 20, 30}
	onlyB := []uint64{40, 50}
	shared := []uint64{100, 200, 300, 400}

	for _, k := range onlyA {
		a.Insert(k)
	}
	for _, k := range onlyB {
		b.Insert(k)
	}
	for _, k := range shared {
		a.Insert(k)
		b.Insert(k)
	}

	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	recovered, ok := diff.Peel()
	if !ok {
		t.Fatalf("Peel did not fully decode")
	}

	var gotOnlyA, gotOnlyB []uint64
	for _, pk := range recovered {
		if pk.Sign > 0 {
			gotOnlyA = append(gotOnlyA, pk.Key)
		} else {
			gotOnlyB = append(gotOnlyB, pk.Key)
		}
	}
	sort.Slice(gotOnlyA, func(i, j int) bool { return gotOnlyA[i] < gotOnlyA[j] })
	sort.Slice(gotOnlyB, func(i, j int) bool { return gotOnlyB[i] < gotOnlyB[j] })

	if !equalUint64(gotOnlyA, onlyA) {
		t.Errorf("only-A recovered = %v, want %v", gotOnlyA, onlyA)
	}
	if !equalUint64(gotOnlyB, onlyB) {
		t.Errorf("only-B recovered = %v, want %v", gotOnlyB, onlyB)
	}
}

func TestPeelOfEmptyDifferenceSucceedsWithNothingRecovered(t *testing.T) {
	scheme := newTestScheme()
	a := NewTable(scheme, 32)
	b := NewTable(scheme, 32)
	for _, k := range []uint64{1, 2, 3} {
		a.Insert(k)
		b.Insert(k)
	}
	diff, err := a.Subtract(b)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	recovered, ok := diff.Peel()
	if !ok {
		t.Fatalf("Peel of identical tables should fully decode")
	}
	if len(recovered) != 0 {
		t.Errorf("expected no recovered keys, got %v", recovered)
	}
}

func TestSubtractDetectsStructuralMismatch(t *testing.T) {
	a := NewTable(newTestScheme(), 32)
	other := NewScheme(2, 64, 64, 3, 12345)
	b := NewTable(other, 33)
	if _, err := a.Subtract(b); err == nil {
		t.Errorf("expected structural mismatch error")
	}
}

func TestSubtractDetectsSeedMismatch(t *testing.T) {
	a := NewTable(newTestScheme(), 32)
	b := NewTable(NewScheme(2, 64, 64, 4, 54321), 32)
	if _, err := a.Subtract(b); err == nil {
		t.Errorf("expected seed mismatch error")
	}
}

func TestRoundUpBuckets(t *testing.T) {
	cases := []struct{ n, k, want int }{
		{10, 4, 12},
		{12, 4, 12},
		{1, 4, 4},
		{17, 3, 18},
	}
	for _, c := range cases {
		if got := RoundUpBuckets(c.n, c.k); got != c.want {
			t.Errorf("RoundUpBuckets(%d,%d) = %d, want %d", c.n, c.k, got, c.want)
		}
	}
}

func equalUint64(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
