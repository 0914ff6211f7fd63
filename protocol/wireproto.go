package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/riftsync/riftsync/gf"
	"github.com/riftsync/riftsync/iblt"
	"github.com/riftsync/riftsync/strata"
	"github.com/riftsync/riftsync/wire"
)

// DecodeStatus is Round 2 reply's decode_status field: 0 means the peel
// fully decoded, anything else signals DecodeFailed.
type DecodeStatus uint32

const (
	DecodeOK     DecodeStatus = 0
	DecodeFailed DecodeStatus = 1
)

// strataHeader is Round 1's leading fixed fields.
type strataHeader struct {
	NParties uint16
	KeyBits  uint16
	HashBits uint16
	L        uint16
}

func newStrataHeader(cfg SyncConfig, levels int) strataHeader {
	return strataHeader{
		NParties: uint16(cfg.NumParties),
		KeyBits:  uint16(cfg.KeyBits),
		HashBits: uint16(cfg.HashBits),
		L:        uint16(levels),
	}
}

func writeStrataHeader(w io.Writer, h strataHeader) error {
	if err := wire.WriteU16(w, h.NParties); err != nil {
		return err
	}
	if err := wire.WriteU16(w, h.KeyBits); err != nil {
		return err
	}
	if err := wire.WriteU16(w, h.HashBits); err != nil {
		return err
	}
	return wire.WriteU16(w, h.L)
}

func readStrataHeader(r io.Reader) (strataHeader, error) {
	var h strataHeader
	var err error
	if h.NParties, err = wire.ReadU16(r); err != nil {
		return h, err
	}
	if h.KeyBits, err = wire.ReadU16(r); err != nil {
		return h, err
	}
	if h.HashBits, err = wire.ReadU16(r); err != nil {
		return h, err
	}
	if h.L, err = wire.ReadU16(r); err != nil {
		return h, err
	}
	return h, nil
}

// EncodeRound1 writes the Strata exchange message: the header followed
// by every stratum's IBLT in order.
func EncodeRound1(e *strata.Estimator, cfg SyncConfig) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeStrataHeader(&buf, newStrataHeader(cfg, len(e.Levels))); err != nil {
		return nil, err
	}
	for _, t := range e.Levels {
		if err := wire.WriteIBLT(&buf, t); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeRound1 parses a Strata exchange message into a peer estimator
// shaped exactly like one built locally with seed and the party count,
// key/hash widths and level count the message header carries, so it can
// be subtracted against the local estimator level by level.
func DecodeRound1(data []byte, seed uint64) (*strata.Estimator, error) {
	r := bytes.NewReader(data)
	h, err := readStrataHeader(r)
	if err != nil {
		return nil, fmt.Errorf("protocol: decoding round 1 header: %w", err)
	}
	template := strata.New(int(h.NParties), int(h.KeyBits), int(h.HashBits), seed, int(h.L))
	field := gf.New(int(h.NParties))
	keyCells := field.Digits(int(h.KeyBits))
	hashCells := field.Digits(int(h.HashBits))
	for i, t := range template.Levels {
		raw, err := wire.ReadIBLT(r, field, keyCells, hashCells)
		if err != nil {
			return nil, fmt.Errorf("protocol: decoding round 1 stratum %d: %w", i, err)
		}
		decoded, ok := raw.ToTable(t.Scheme)
		if !ok {
			return nil, fmt.Errorf("%w: round 1 stratum %d", ErrSizeMismatch, i)
		}
		template.Levels[i] = decoded
	}
	return template, nil
}

// EncodeRound1Reply writes D_hat followed by the Round-2-shaped IBLT the
// responder already built at the agreed size.
func EncodeRound1Reply(dHat uint64, table *iblt.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteU32(&buf, uint32(dHat)); err != nil {
		return nil, err
	}
	if err := wire.WriteIBLT(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// round1ReplyHeader is what decodeRound1ReplyHeader returns from a Round 1
// reply without turning the embedded IBLT into a Table (the initiator only
// needs its shape).
type round1ReplyHeader struct {
	DHat       uint64
	NumBuckets int
	NumHashfns int
}

func decodeRound1ReplyHeader(data []byte, scheme *iblt.Scheme) (round1ReplyHeader, error) {
	r := bytes.NewReader(data)
	dHat, err := wire.ReadU32(r)
	if err != nil {
		return round1ReplyHeader{}, fmt.Errorf("protocol: decoding round 1 reply D_hat: %w", err)
	}
	raw, err := wire.ReadIBLT(r, scheme.Field, scheme.KeyCells, scheme.HashCells)
	if err != nil {
		return round1ReplyHeader{}, fmt.Errorf("protocol: decoding round 1 reply iblt: %w", err)
	}
	return round1ReplyHeader{DHat: uint64(dHat), NumBuckets: int(raw.NumBuckets), NumHashfns: int(raw.NumHashfns)}, nil
}

// EncodeRound2 writes the sender's sized real-data IBLT.
func EncodeRound2(table *iblt.Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteIBLT(&buf, table); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRound2 reads a peer's sized IBLT against the local scheme.
func DecodeRound2(data []byte, scheme *iblt.Scheme) (*iblt.Table, error) {
	r := bytes.NewReader(data)
	raw, err := wire.ReadIBLT(r, scheme.Field, scheme.KeyCells, scheme.HashCells)
	if err != nil {
		return nil, fmt.Errorf("protocol: decoding round 2 iblt: %w", err)
	}
	table, ok := raw.ToTable(scheme)
	if !ok {
		return nil, fmt.Errorf("%w: round 2 iblt shape", ErrSizeMismatch)
	}
	return table, nil
}

// OnlyBBlock is one block B has that A lacks, attached body and all.
type OnlyBBlock struct {
	Key   uint64
	Bytes []byte
}

// Round2Reply is B's response: the peel outcome, the bodies of every
// only-B block, and B's full block-key sequence so A can reorder.
type Round2Reply struct {
	Status     DecodeStatus
	OnlyB      []OnlyBBlock
	BlockOrder []uint64
}

// EncodeRound2Reply writes decode_status, n_only_B and its blocks, then
// n_blocks_total and the block-key sequence.
func EncodeRound2Reply(msg Round2Reply) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteU32(&buf, uint32(msg.Status)); err != nil {
		return nil, err
	}
	if err := wire.WriteU64(&buf, uint64(len(msg.OnlyB))); err != nil {
		return nil, err
	}
	for _, blk := range msg.OnlyB {
		if err := wire.WriteU64(&buf, blk.Key); err != nil {
			return nil, err
		}
		if err := wire.WriteU64(&buf, uint64(len(blk.Bytes))); err != nil {
			return nil, err
		}
		if _, err := buf.Write(blk.Bytes); err != nil {
			return nil, err
		}
	}
	if err := wire.WriteU64(&buf, uint64(len(msg.BlockOrder))); err != nil {
		return nil, err
	}
	for _, k := range msg.BlockOrder {
		if err := wire.WriteU64(&buf, k); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeRound2Reply parses a Round2Reply message.
func DecodeRound2Reply(data []byte) (Round2Reply, error) {
	r := bytes.NewReader(data)
	status, err := wire.ReadU32(r)
	if err != nil {
		return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply status: %w", err)
	}
	nOnlyB, err := wire.ReadU64(r)
	if err != nil {
		return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply n_only_B: %w", err)
	}
	onlyB := make([]OnlyBBlock, 0, nOnlyB)
	for i := uint64(0); i < nOnlyB; i++ {
		key, err := wire.ReadU64(r)
		if err != nil {
			return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply block %d key: %w", i, err)
		}
		length, err := wire.ReadU64(r)
		if err != nil {
			return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply block %d length: %w", i, err)
		}
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply block %d body: %w", i, err)
		}
		onlyB = append(onlyB, OnlyBBlock{Key: key, Bytes: body})
	}
	nBlocksTotal, err := wire.ReadU64(r)
	if err != nil {
		return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply n_blocks_total: %w", err)
	}
	order := make([]uint64, nBlocksTotal)
	for i := range order {
		k, err := wire.ReadU64(r)
		if err != nil {
			return Round2Reply{}, fmt.Errorf("protocol: decoding round 2 reply block order %d: %w", i, err)
		}
		order[i] = k
	}
	return Round2Reply{Status: DecodeStatus(status), OnlyB: onlyB, BlockOrder: order}, nil
}
