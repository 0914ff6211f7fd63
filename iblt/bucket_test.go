package iblt

import (
	"testing"

	"github.com/riftsync/riftsync/gf"
)

func TestBucketAddSingleRemoveSingleIsZero(t *testing.T) {
	field := gf.New(2)
	keyElem := field.Encode(42, 64)
	hashElem := field.Encode(9001, 64)
	b := NewBucket(field, field.Digits(64), field.Digits(64))
	b.AddSingle(field, keyElem, hashElem)
	if b.IsZero() {
		t.Fatalf("bucket should not be zero after AddSingle")
	}
	b.RemoveSingle(field, keyElem, hashElem)
	if !b.IsZero() {
		t.Fatalf("bucket should be zero after AddSingle then RemoveSingle")
	}
}

func TestBucketAddBucketRemoveBucket(t *testing.T) {
	field := gf.New(2)
	keyElem := field.Encode(7, 64)
	hashElem := field.Encode(77, 64)
	a := NewBucket(field, field.Digits(64), field.Digits(64))
	a.AddSingle(field, keyElem, hashElem)
	b := NewBucket(field, field.Digits(64), field.Digits(64))
	b.AddBucket(field, a)
	if b.Count != 1 || !b.KeySum.Equal(a.KeySum) {
		t.Fatalf("AddBucket did not copy fields: %+v", b)
	}
	b.RemoveBucket(field, a)
	if !b.IsZero() {
		t.Fatalf("RemoveBucket should restore zero state")
	}
}

func TestPureMultiplicityTwoParty(t *testing.T) {
	field := gf.New(2)
	keyBits, hashBits := 64, 64
	hasher := func(k uint64) uint64 { return k * 2654435761 }
	key := uint64(123456)
	keyElem := field.Encode(key, keyBits)
	hashElem := field.Encode(hasher(key), hashBits)

	b := NewBucket(field, field.Digits(keyBits), field.Digits(hashBits))
	b.AddSingle(field, keyElem, hashElem)
	m, gotKey, ok := pureMultiplicity(b, field, hasher, keyBits, hashBits, 2)
	if !ok || m != 1 || gotKey != key {
		t.Fatalf("pureMultiplicity = (%d,%d,%v), want (1,%d,true)", m, gotKey, ok, key)
	}
}

func TestPureMultiplicityNegativeSign(t *testing.T) {
	field := gf.New(2)
	keyBits, hashBits := 64, 64
	hasher := func(k uint64) uint64 { return k * 2654435761 }
	key := uint64(555)
	keyElem := field.Encode(key, keyBits)
	hashElem := field.Encode(hasher(key), hashBits)

	b := NewBucket(field, field.Digits(keyBits), field.Digits(hashBits))
	b.RemoveSingle(field, keyElem, hashElem)
	m, gotKey, ok := pureMultiplicity(b, field, hasher, keyBits, hashBits, 2)
	if !ok || m != -1 || gotKey != key {
		t.Fatalf("pureMultiplicity = (%d,%d,%v), want (-1,%d,true)", m, gotKey, ok, key)
	}
}

func TestBucketCloneIndependence(t *testing.T) {
	field := gf.New(2)
	b := NewBucket(field, field.Digits(64), field.Digits(64))
	b.AddSingle(field, field.Encode(1, 64), field.Encode(2, 64))
	c := b.Clone()
	c.KeySum.Cells[0] ^= 1
	if b.KeySum.Equal(c.KeySum) {
		t.Fatalf("clone should be independent of original")
	}
}
