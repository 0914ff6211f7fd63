// Package cmd provides the riftsync CLI binary.
//
// riftsync (cmd/riftsync) is a two-subcommand tool for running one side
// of a file-sync exchange:
//
//	go run ./cmd/riftsync serve --addr=:8090 --file=/srv/data.bin
//	go run ./cmd/riftsync sync --peer=http://remote:8090 --file=./local.bin --out=./remote.bin
//
// Both peers must agree on --config (a YAML SyncConfig) or accept the
// matching defaults; a structural mismatch between peers surfaces as
// protocol.ErrSizeMismatch rather than silently reconciling.
package cmd
