package protocol

import "errors"

// Error kinds a sync session can surface. DecodeFailed is the only one the
// driver recovers from locally, by resizing and retrying up to the
// configured cap; every other kind propagates to the caller immediately.
var (
	ErrDecodeFailed     = errors.New("protocol: peel decode failed")
	ErrSizeMismatch     = errors.New("protocol: iblt structural parameters disagree")
	ErrHashSeedMismatch = errors.New("protocol: hash seeds disagree")
	ErrTransport        = errors.New("protocol: transport error")
	ErrBlockMissing     = errors.New("protocol: block present in neither the local table nor the peer payload")
	ErrOutOfOrder       = errors.New("protocol: message received out of session order")
	ErrRetriesExhausted = errors.New("protocol: retry cap exhausted after repeated decode failures")
)
