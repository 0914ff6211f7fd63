package protocol

import (
	"fmt"
	"io"

	"github.com/riftsync/riftsync/chunk"
)

// BlockTable is a peer's local view of a file: every block keyed by its
// block key, plus the file-order sequence of those keys (a key can in
// principle repeat if two blocks hash identically; the session treats
// that as the BlockMissing/hash-collision concern the design notes flag).
type BlockTable struct {
	Blocks map[uint64]chunk.Block
	Order  []uint64
}

// buildBlockTable chunks r per cfg.AvgBlockSize and indexes the result.
func buildBlockTable(r io.Reader, cfg SyncConfig) (*BlockTable, error) {
	blocks, err := chunk.All(chunk.New(r, cfg.AvgBlockSize))
	if err != nil {
		return nil, fmt.Errorf("protocol: chunking input: %w", err)
	}
	bt := &BlockTable{
		Blocks: make(map[uint64]chunk.Block, len(blocks)),
		Order:  make([]uint64, len(blocks)),
	}
	for i, b := range blocks {
		bt.Blocks[b.Key] = b
		bt.Order[i] = b.Key
	}
	return bt, nil
}
