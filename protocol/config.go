package protocol

import "github.com/riftsync/riftsync/strata"

// SyncConfig carries every parameter a caller must fix before a sync
// session starts; both peers must agree on it out of band (it is not
// itself negotiated on the wire, aside from the structural fields each
// message carries for consistency checking).
type SyncConfig struct {
	AvgBlockSize int    `json:"avg_block_size" yaml:"avg_block_size"`
	NumParties   int    `json:"num_parties" yaml:"num_parties"`
	NumHashfns   int    `json:"num_hashfns" yaml:"num_hashfns"`
	KeyBits      int    `json:"key_bits" yaml:"key_bits"`
	HashBits     int    `json:"hash_bits" yaml:"hash_bits"`
	StrataLevels int    `json:"strata_levels" yaml:"strata_levels"`
	RetryCap     int    `json:"retry_cap" yaml:"retry_cap"`
	Seed         uint64 `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the parameter defaults called out explicitly as
// caller-supplied knobs: 700-byte average blocks, 2 parties, 4 IBLT
// sub-tables, 64-bit keys and hashes, 32 strata, a retry cap of 3.
func DefaultConfig() SyncConfig {
	return SyncConfig{
		AvgBlockSize: 700,
		NumParties:   2,
		NumHashfns:   4,
		KeyBits:      64,
		HashBits:     64,
		StrataLevels: strata.DefaultLevels,
		RetryCap:     3,
	}
}

// Validate rejects configurations the session driver cannot act on.
func (c SyncConfig) Validate() error {
	switch {
	case c.AvgBlockSize <= 0:
		return errConfig("avg_block_size must be positive")
	case c.NumParties < 2:
		return errConfig("num_parties must be at least 2")
	case c.NumHashfns < 1:
		return errConfig("num_hashfns must be at least 1")
	case c.KeyBits <= 0 || c.KeyBits%8 != 0:
		return errConfig("key_bits must be a positive multiple of 8")
	case c.HashBits <= 0 || c.HashBits%8 != 0:
		return errConfig("hash_bits must be a positive multiple of 8")
	case c.StrataLevels <= 0:
		return errConfig("strata_levels must be positive")
	case c.RetryCap < 0:
		return errConfig("retry_cap must be non-negative")
	}
	return nil
}

func errConfig(msg string) error {
	return &configError{msg: msg}
}

type configError struct{ msg string }

func (e *configError) Error() string { return "protocol: invalid config: " + e.msg }
