package chunk

import (
	"bytes"
	"math/rand"
	"testing"
)

func reassemble(blocks []Block) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, b.Bytes...)
	}
	return out
}

func TestChunkerReassemblesExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 100000)
	rng.Read(data)

	blocks, err := All(New(bytes.NewReader(data), 700))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	got := reassemble(blocks)
	if !bytes.Equal(got, data) {
		t.Fatalf("reassembled data does not match input (len %d vs %d)", len(got), len(data))
	}
}

func TestChunkerOffsetsAreContiguous(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	data := make([]byte, 50000)
	rng.Read(data)
	blocks, err := All(New(bytes.NewReader(data), 700))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	var want uint64
	for _, b := range blocks {
		if b.Offset != want {
			t.Fatalf("block offset = %d, want %d", b.Offset, want)
		}
		want += uint64(len(b.Bytes))
	}
	if want != uint64(len(data)) {
		t.Fatalf("total block bytes = %d, want %d", want, len(data))
	}
}

func TestEmptyStreamYieldsNoBlocks(t *testing.T) {
	blocks, err := All(New(bytes.NewReader(nil), 700))
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks for empty input, got %d", len(blocks))
	}
}

func TestLocalEditOnlyShiftsNearbyBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	a := make([]byte, 100000)
	rng.Read(a)
	b := make([]byte, len(a))
	copy(b, a)
	for i := 50000; i < 50050; i++ {
		b[i] ^= 0xFF
	}

	blocksA, err := All(New(bytes.NewReader(a), 700))
	if err != nil {
		t.Fatalf("All(a): %v", err)
	}
	blocksB, err := All(New(bytes.NewReader(b), 700))
	if err != nil {
		t.Fatalf("All(b): %v", err)
	}

	keysA := make(map[uint64]bool)
	for _, blk := range blocksA {
		keysA[blk.Key] = true
	}
	changed := 0
	for _, blk := range blocksB {
		if !keysA[blk.Key] {
			changed++
		}
	}
	if changed == 0 || changed > 6 {
		t.Errorf("expected a small number of changed blocks near the edit, got %d out of %d", changed, len(blocksB))
	}
}
