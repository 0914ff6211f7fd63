package gf

import "testing"

func TestNewFieldModulus(t *testing.T) {
	cases := []struct {
		nParties int
		wantP    byte
	}{
		{1, 2},
		{2, 2},
		{3, 3},
		{4, 5},
		{5, 5},
		{6, 7},
	}
	for _, c := range cases {
		f := New(c.nParties)
		if f.P != c.wantP {
			t.Errorf("New(%d).P = %d, want %d", c.nParties, f.P, c.wantP)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := New(2)
	for _, key := range []uint64{0, 1, 42, 255, 1<<16 - 1} {
		e := f.Encode(key, 64)
		got := f.Decode(e)
		if got != key {
			t.Errorf("Decode(Encode(%d)) = %d", key, got)
		}
	}
}

func TestExtractKeyAfterScaling(t *testing.T) {
	f := New(4) // p = 5
	for m := 1; m < int(f.P); m++ {
		for _, key := range []uint64{0, 1, 7, 123} {
			e := f.Encode(key, 16)
			scaled := f.Zero(len(e.Cells))
			for i, cell := range e.Cells {
				scaled.Cells[i] = byte((int(cell) * m) % int(f.P))
			}
			if !f.CanDivideBy(scaled, m) {
				t.Fatalf("CanDivideBy(%d) unexpectedly false", m)
			}
			got := f.ExtractKey(scaled, m, 16)
			if got != key {
				t.Errorf("m=%d key=%d: ExtractKey(m*encode(k), m) = %d", m, key, got)
			}
		}
	}
}

func TestAddSubInverse(t *testing.T) {
	f := New(4)
	a := f.Encode(11, 16)
	b := f.Encode(29, 16)
	sum := f.Add(a, b)
	back := f.Sub(sum, b)
	if !back.Equal(a) {
		t.Errorf("Sub(Add(a,b),b) != a")
	}
}

func TestIsZero(t *testing.T) {
	f := New(2)
	z := f.Zero(8)
	if !z.IsZero() {
		t.Errorf("Zero() should be zero")
	}
	e := f.Encode(1, 64)
	if e.IsZero() {
		t.Errorf("encode(1) should not be zero")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []int{2, 3, 5, 6}
	for _, nParties := range cases {
		f := New(nParties)
		e := f.Encode(0xdeadbeef, 64)
		packed := f.PackCells(e.Cells)
		wantBytes := (len(e.Cells)*f.d + 7) / 8
		if len(packed) != wantBytes {
			t.Errorf("nParties=%d: PackCells len = %d, want %d", nParties, len(packed), wantBytes)
		}
		unpacked := f.UnpackCells(packed, len(e.Cells))
		if !(Element{Cells: unpacked}).Equal(e) {
			t.Errorf("nParties=%d: UnpackCells(PackCells(cells)) != cells", nParties)
		}
	}
}

func TestPackedBytesDefaultTwoPartyKey(t *testing.T) {
	f := New(2)
	cells := f.Digits(64)
	if got := f.PackedBytes(cells); got != 8 {
		t.Errorf("PackedBytes(%d) for default 2-party 64-bit key = %d, want 8", cells, got)
	}
}

func TestCloneIndependence(t *testing.T) {
	f := New(2)
	a := f.Encode(5, 16)
	b := a.Clone()
	b.Cells[0] ^= 1
	if a.Equal(b) {
		t.Errorf("mutating clone affected original")
	}
}
