// Package protocol drives a two-round set-reconciliation file sync
// between exactly two peers: an initiator (A) and a responder (B).
//
// # Message flow
//
//  1. Round 1: A sends a Strata Estimator built over its own block keys.
//  2. Round 1 reply: B decodes A's Strata, estimates |A△B|, sizes a
//     real-data IBLT accordingly, and sends D_hat plus that IBLT (A reads
//     only its shape).
//  3. Round 2: A builds its own IBLT at the agreed size and sends it.
//  4. Round 2 reply: B subtracts its own IBLT from A's, peels the result,
//     and replies with either a DecodeFailed status (prompting A to
//     retry at double capacity, up to SyncConfig.RetryCap) or the bodies
//     of every only-B block plus B's full block-key sequence.
//  5. Reconstruction: A replays that sequence, pulling each block from
//     its own table or B's payload, to produce B's file.
//
// InitiatorSession and ResponderSession are the two halves of this
// exchange; they exchange only byte slices (see wireproto.go), so any
// transport that can move opaque frames between two peers — the
// transport package's HTTP client/server, a pipe, a test harness — can
// carry them.
package protocol
