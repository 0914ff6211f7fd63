package protocol

import (
	"fmt"
	"io"

	"github.com/riftsync/riftsync/iblt"
	"github.com/riftsync/riftsync/strata"
)

// ResponderSession drives the B side of a sync: it replies to A's Strata
// with an estimate and a sized IBLT of its own, then subtracts and peels
// whatever sized IBLT A sends at Round 2 (rebuilding its own IBLT fresh
// at whatever size A's message specifies, so a retry at a doubled size
// costs B nothing beyond the peel itself).
type ResponderSession struct {
	cfg        SyncConfig
	table      *BlockTable
	localStrat *strata.Estimator
	scheme     *iblt.Scheme
	state      SessionState
}

// NewResponderSession chunks file and builds the local Strata.
func NewResponderSession(cfg SyncConfig, file io.Reader) (*ResponderSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := buildBlockTable(file, cfg)
	if err != nil {
		return nil, err
	}
	s := &ResponderSession{
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
func (s *ResponderSession) State() SessionState { return s.state }

// HandleRound1 decodes A's Strata, estimates |A△B|, sizes B's real IBLT
// accordingly, builds it, and returns the Round 1 reply.
func (s *ResponderSession) HandleRound1(data []byte) ([]byte, error) {
	if s.state != StateInit {
		return nil, fmt.Errorf("%w: Round1 from state %s", ErrOutOfOrder, s.state)
	}
	peerStrat, err := DecodeRound1(data, s.cfg.Seed)
	if err != nil {
		return nil, err
	}
	local := s.localStrat
	if peerStrat.NParties != local.NParties || peerStrat.KeyBits != local.KeyBits ||
		peerStrat.HashBits != local.HashBits || len(peerStrat.Levels) != len(local.Levels) {
		return nil, fmt.Errorf("%w: peer strata n_parties=%d key_bits=%d hash_bits=%d levels=%d, local %d/%d/%d/%d",
			ErrSizeMismatch, peerStrat.NParties, peerStrat.KeyBits, peerStrat.HashBits, len(peerStrat.Levels),
			local.NParties, local.KeyBits, local.HashBits, len(local.Levels))
	}
	dHat, err := s.localStrat.Estimate(peerStrat)
	if err != nil {
		return nil, fmt.Errorf("%w: estimating difference: %v", ErrHashSeedMismatch, err)
	}
	numBuckets := iblt.SizeForDifference(dHat, s.cfg.NumHashfns)
	table := iblt.NewTable(s.scheme, numBuckets)
	for _, k := range s.table.Order {
		table.Insert(k)
	}
	reply, err := EncodeRound1Reply(dHat, table)
	if err != nil {
		return nil, err
	}
	s.state = StateRound1Sent
	return reply, nil
}

// HandleRound2 decodes A's sized IBLT (the size is taken from A's message,
// so a retry at double size needs no extra negotiation), rebuilds B's own
// IBLT at that size, subtracts it from A's (so only-A keys peel with a
// positive sign), peels, and returns the Round 2 reply.
func (s *ResponderSession) HandleRound2(data []byte) ([]byte, error) {
	if s.state != StateRound1Sent {
		return nil, fmt.Errorf("%w: Round2 from state %s", ErrOutOfOrder, s.state)
	}
	aTable, err := DecodeRound2(data, s.scheme)
	if err != nil {
		return nil, err
	}
	bTable := iblt.NewTable(s.scheme, aTable.NumBuckets())
	for _, k := range s.table.Order {
		bTable.Insert(k)
	}

	diff, err := aTable.Subtract(bTable)
	if err != nil {
		return nil, err
	}
	recovered, ok := diff.Peel()
	if !ok {
		reply, err := EncodeRound2Reply(Round2Reply{Status: DecodeFailed})
		if err != nil {
			return nil, err
		}
		return reply, nil
	}

	var onlyB []OnlyBBlock
	for _, pk := range recovered {
		if pk.Sign > 0 {
			continue // only-A: A has it, B doesn't need to do anything with it
		}
		blk, ok := s.table.Blocks[pk.Key]
		if !ok {
			return nil, fmt.Errorf("%w: recovered only-B key %d absent from local table", ErrBlockMissing, pk.Key)
		}
		onlyB = append(onlyB, OnlyBBlock{Key: pk.Key, Bytes: blk.Bytes})
	}

	reply, err := EncodeRound2Reply(Round2Reply{
		Status:     DecodeOK,
		OnlyB:      onlyB,
		BlockOrder: s.table.Order,
	})
	if err != nil {
		return nil, err
	}
	s.state = StateReconstructed // B's work is done once it has replied
	return reply, nil
}
