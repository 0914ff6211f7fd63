// Package wire implements the little-endian binary layouts the
// synchronization protocol's messages use on the network, plus a
// length-delimited frame format any io.Reader/io.Writer transport can
// carry those messages over.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/riftsync/riftsync/gf"
	"github.com/riftsync/riftsync/iblt"
)

// maxFrameBytes bounds a single frame so a corrupt or hostile length
// prefix cannot make a reader allocate unbounded memory.
const maxFrameBytes = 256 << 20

// WriteFrame writes payload prefixed by its length as a big-endian u32,
// the same framing for every message kind, for transports that carry
// messages over a plain byte stream. The HTTP transport does not use it:
// it sends each message unframed as a request or response body.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-delimited frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return nil, fmt.Errorf("wire: frame of %d bytes exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// --- little-endian primitives, per spec: "all integers little-endian" ---

func WriteU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func ReadU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func WriteI32(w io.Writer, v int32) error {
	return WriteU32(w, uint32(v))
}

func ReadI32(r io.Reader) (int32, error) {
	v, err := ReadU32(r)
	return int32(v), err
}

func WriteU64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func ReadU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// RawBucket is a bucket's wire form: KeySum and HashSum are the bit-packed
// cell bytes (d = field.DigitBits() bits per digit, cells and bits both
// low-to-high, per gf.Field.PackCells), Count is the signed multiplicity.
// This is what makes key_sum_bytes/hash_sum_bytes match the formula in the
// wire layout this package implements: a full byte per digit would waste
// 7 of every 8 bits whenever p is small, as it is for the common few-party
// case.
type RawBucket struct {
	KeySum  []byte
	HashSum []byte
	Count   int32
}

// WriteBucket writes a single bucket: key_sum_bytes, hash_sum_bytes,
// i32 count. b's cell slices must already be packed to their wire width
// (WriteIBLT does this via gf.Field.PackCells before calling in).
func WriteBucket(w io.Writer, b RawBucket) error {
	if _, err := w.Write(b.KeySum); err != nil {
		return err
	}
	if _, err := w.Write(b.HashSum); err != nil {
		return err
	}
	return WriteI32(w, b.Count)
}

// ReadBucket reads a single bucket whose packed key-sum is keySumBytes
// bytes and packed hash-sum is hashSumBytes bytes.
func ReadBucket(r io.Reader, keySumBytes, hashSumBytes int) (RawBucket, error) {
	keySum := make([]byte, keySumBytes)
	if _, err := io.ReadFull(r, keySum); err != nil {
		return RawBucket{}, err
	}
	hashSum := make([]byte, hashSumBytes)
	if _, err := io.ReadFull(r, hashSum); err != nil {
		return RawBucket{}, err
	}
	count, err := ReadI32(r)
	if err != nil {
		return RawBucket{}, err
	}
	return RawBucket{KeySum: keySum, HashSum: hashSum, Count: count}, nil
}

// RawIBLT is an IBLT's wire form, a flat bucket list in sub-table-ascending,
// bucket-index-ascending order (the same order the peeling decoder scans
// in), plus the header fields needed to reconstruct its shape.
type RawIBLT struct {
	NumBuckets uint32
	NumHashfns uint16
	Buckets    []RawBucket

	// KeyCells and HashCells are the digit-cell widths ReadIBLT sized each
	// bucket's packed sums by. ToTable does not read them; it unpacks
	// against the widths of the scheme it is given.
	KeyCells  int
	HashCells int
}

// WriteIBLT writes num_buckets, num_hashfns, then every bucket of t in
// scan order.
func WriteIBLT(w io.Writer, t *iblt.Table) error {
	if err := WriteU32(w, uint32(t.NumBuckets())); err != nil {
		return err
	}
	if err := WriteU16(w, uint16(t.Scheme.NumHashfns)); err != nil {
		return err
	}
	field := t.Scheme.Field
	for i := range t.Sub {
		for _, b := range t.Sub[i] {
			raw := RawBucket{
				KeySum:  field.PackCells(b.KeySum.Cells),
				HashSum: field.PackCells(b.HashSum.Cells),
				Count:   int32(b.Count),
			}
			if err := WriteBucket(w, raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadIBLT reads the header and bucket list. field, keyCells and hashCells
// are the field and digit-cell widths the local session already agreed
// on; they determine the packed key_sum_bytes/hash_sum_bytes each bucket
// occupies on the wire.
func ReadIBLT(r io.Reader, field *gf.Field, keyCells, hashCells int) (RawIBLT, error) {
	numBuckets, err := ReadU32(r)
	if err != nil {
		return RawIBLT{}, err
	}
	numHashfns, err := ReadU16(r)
	if err != nil {
		return RawIBLT{}, err
	}
	keySumBytes := field.PackedBytes(keyCells)
	hashSumBytes := field.PackedBytes(hashCells)
	buckets := make([]RawBucket, 0, numBuckets)
	for i := uint32(0); i < numBuckets; i++ {
		b, err := ReadBucket(r, keySumBytes, hashSumBytes)
		if err != nil {
			return RawIBLT{}, err
		}
		buckets = append(buckets, b)
	}
	return RawIBLT{NumBuckets: numBuckets, NumHashfns: numHashfns, Buckets: buckets, KeyCells: keyCells, HashCells: hashCells}, nil
}

// ToTable rebuilds a Table from its wire form against a local scheme,
// returning false if the wire header disagrees with the scheme's shape
// (a structural mismatch the caller should surface as a protocol error).
func (raw RawIBLT) ToTable(scheme *iblt.Scheme) (*iblt.Table, bool) {
	if uint16(scheme.NumHashfns) != raw.NumHashfns {
		return nil, false
	}
	if raw.NumHashfns == 0 || raw.NumBuckets%uint32(raw.NumHashfns) != 0 {
		return nil, false
	}
	field := scheme.Field
	keySumBytes := field.PackedBytes(scheme.KeyCells)
	hashSumBytes := field.PackedBytes(scheme.HashCells)
	perSub := int(raw.NumBuckets / uint32(raw.NumHashfns))
	sub := make([][]iblt.Bucket, raw.NumHashfns)
	idx := 0
	for i := range sub {
		sub[i] = make([]iblt.Bucket, perSub)
		for j := range sub[i] {
			rb := raw.Buckets[idx]
			idx++
			if len(rb.KeySum) != keySumBytes || len(rb.HashSum) != hashSumBytes {
				return nil, false
			}
			sub[i][j] = iblt.Bucket{
				KeySum:  gf.Element{Cells: field.UnpackCells(rb.KeySum, scheme.KeyCells)},
				HashSum: gf.Element{Cells: field.UnpackCells(rb.HashSum, scheme.HashCells)},
				Count:   int(rb.Count),
			}
		}
	}
	return iblt.NewTableFromBuckets(scheme, perSub, sub), true
}
