package protocol

import (
	"fmt"
	"io"

	"github.com/riftsync/riftsync/iblt"
	"github.com/riftsync/riftsync/strata"
)

// SessionState is the monotone progression a peer's session moves
// through: Round1-sent once its Strata has shipped, Round2-sent once its
// sized IBLT has shipped, Reconstructed once the output file is written.
// A responder session (the B side) has no Round2-sent state of its own;
// it only tracks having replied.
type SessionState int

const (
	StateInit SessionState = iota
	StateRound1Sent
	StateRound2Sent
	StateReconstructed
)

func (s SessionState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRound1Sent:
		return "round1-sent"
	case StateRound2Sent:
		return "round2-sent"
	case StateReconstructed:
		return "reconstructed"
	default:
		return "unknown"
	}
}

// Report is the JSON-shaped summary a CLI caller prints on completion.
type Report struct {
	BytesSentRound1     int    `json:"bytes_sent_round1"`
	BytesReceivedRound1  int   `json:"bytes_received_round1_reply"`
	BytesSentRound2     int    `json:"bytes_sent_round2"`
	BytesReceivedRound2 int    `json:"bytes_received_round2_reply"`
	DHat                uint64 `json:"d_hat"`
	NumBuckets          int    `json:"num_buckets"`
	OnlyABlocks         int    `json:"only_a_blocks"`
	OnlyBBlocks         int    `json:"only_b_blocks"`
	Retries             int    `json:"retries"`
	Synchronized        bool   `json:"synchronized"`
}

// InitiatorSession drives the A side of a sync: it ships the Strata,
// reads back D_hat and an agreed IBLT size, ships its own sized IBLT,
// and reconstructs B's file from the reply.
type InitiatorSession struct {
	cfg        SyncConfig
	table      *BlockTable
	localStrat *strata.Estimator
	scheme     *iblt.Scheme
	numBuckets int
	localIBLT  *iblt.Table

	state   SessionState
	retries int
	Report  Report
}

// NewInitiatorSession chunks file and builds the local Strata ready to
// send as Round 1.
func NewInitiatorSession(cfg SyncConfig, file io.Reader) (*InitiatorSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := buildBlockTable(file, cfg)
	if err != nil {
		return nil, err
	}
	s := &InitiatorSession{
		cfg:    cfg,
		table:  table,
		scheme: iblt.NewScheme(cfg.NumParties, cfg.KeyBits, cfg.HashBits, cfg.NumHashfns, cfg.Seed),
	}
	s.localStrat = strata.New(cfg.NumParties, cfg.KeyBits, cfg.HashBits, cfg.Seed, cfg.StrataLevels)
	for _, k := range table.Order {
		s.localStrat.Insert(k)
	}
	return s, nil
}

// State reports the session's current state.
func (s *InitiatorSession) State() SessionState { return s.state }

// Round1 produces the Strata exchange message and advances the session.
func (s *InitiatorSession) Round1() ([]byte, error) {
	if s.state != StateInit {
		return nil, fmt.Errorf("%w: Round1 from state %s", ErrOutOfOrder, s.state)
	}
	data, err := EncodeRound1(s.localStrat, s.cfg)
	if err != nil {
		return nil, err
	}
	s.state = StateRound1Sent
	s.Report.BytesSentRound1 = len(data)
	return data, nil
}

// ConsumeRound1Reply parses B's D_hat and agreed IBLT size, builds A's
// own sized IBLT over its block keys, and returns the Round 2 message.
func (s *InitiatorSession) ConsumeRound1Reply(data []byte) ([]byte, error) {
	if s.state != StateRound1Sent {
		return nil, fmt.Errorf("%w: Round1Reply from state %s", ErrOutOfOrder, s.state)
	}
	s.Report.BytesReceivedRound1 = len(data)
	hdr, err := decodeRound1ReplyHeader(data, s.scheme)
	if err != nil {
		return nil, err
	}
	if hdr.NumHashfns != s.cfg.NumHashfns {
		return nil, fmt.Errorf("%w: peer num_hashfns=%d, local=%d", ErrSizeMismatch, hdr.NumHashfns, s.cfg.NumHashfns)
	}
	s.Report.DHat = hdr.DHat
	s.numBuckets = hdr.NumBuckets
	s.Report.NumBuckets = s.numBuckets
	return s.buildAndEncodeRound2()
}

func (s *InitiatorSession) buildAndEncodeRound2() ([]byte, error) {
	s.localIBLT = iblt.NewTable(s.scheme, s.numBuckets)
	for _, k := range s.table.Order {
		s.localIBLT.Insert(k)
	}
	data, err := EncodeRound2(s.localIBLT)
	if err != nil {
		return nil, err
	}
	s.state = StateRound2Sent
	s.Report.BytesSentRound2 = len(data)
	return data, nil
}

// Round2Outcome is what ConsumeRound2Reply hands back: either the session
// is done (Done true, call Reconstruct), or it must be retried with a new
// Round 2 message (RetryPayload non-nil).
type Round2Outcome struct {
	Done         bool
	RetryPayload []byte
	OnlyB        []OnlyBBlock
	BlockOrder   []uint64
}

// ConsumeRound2Reply parses B's Round2Reply. On DecodeFailed it doubles
// the IBLT size and returns a fresh Round 2 payload to resend, up to the
// configured retry cap; beyond that it returns ErrRetriesExhausted.
func (s *InitiatorSession) ConsumeRound2Reply(data []byte) (Round2Outcome, error) {
	if s.state != StateRound2Sent {
		return Round2Outcome{}, fmt.Errorf("%w: Round2Reply from state %s", ErrOutOfOrder, s.state)
	}
	s.Report.BytesReceivedRound2 = len(data)
	reply, err := DecodeRound2Reply(data)
	if err != nil {
		return Round2Outcome{}, err
	}
	if reply.Status != DecodeOK {
		if s.retries >= s.cfg.RetryCap {
			return Round2Outcome{}, fmt.Errorf("%w after %d retries", ErrRetriesExhausted, s.retries)
		}
		s.retries++
		s.Report.Retries = s.retries
		s.numBuckets = iblt.RoundUpBuckets(s.numBuckets*2, s.cfg.NumHashfns)
		s.Report.NumBuckets = s.numBuckets
		s.state = StateRound1Sent // allow buildAndEncodeRound2 to advance state again
		retryPayload, err := s.buildAndEncodeRound2()
		if err != nil {
			return Round2Outcome{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		return Round2Outcome{RetryPayload: retryPayload}, nil
	}

	s.Report.OnlyBBlocks = len(reply.OnlyB)
	return Round2Outcome{
		Done:       true,
		OnlyB:      reply.OnlyB,
		BlockOrder: reply.BlockOrder,
	}, nil
}

// Reconstruct replays B's block-key sequence, pulling each block from A's
// own table or B's only-B payload, and writes the result to w.
func (s *InitiatorSession) Reconstruct(w io.Writer, outcome Round2Outcome) error {
	if s.state != StateRound2Sent {
		return fmt.Errorf("%w: Reconstruct from state %s", ErrOutOfOrder, s.state)
	}
	onlyB := make(map[uint64][]byte, len(outcome.OnlyB))
	for _, blk := range outcome.OnlyB {
		onlyB[blk.Key] = blk.Bytes
	}
	for _, key := range outcome.BlockOrder {
		if blk, ok := s.table.Blocks[key]; ok {
			if _, err := w.Write(blk.Bytes); err != nil {
				return fmt.Errorf("%w: %v", ErrTransport, err)
			}
			continue
		}
		if body, ok := onlyB[key]; ok {
			if _, err := w.Write(body); err != nil {
				return fmt.Errorf("%w: %v", ErrTransport, err)
			}
			continue
		}
		return fmt.Errorf("%w: block key %d", ErrBlockMissing, key)
	}
	s.state = StateReconstructed
	s.Report.Synchronized = true
	return nil
}
