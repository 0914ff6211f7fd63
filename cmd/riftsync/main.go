// Command riftsync runs one side of a two-peer file-sync exchange.
//
// # Serving
//
// The responder side listens for incoming sync sessions and answers each
// round against its own copy of a named file:
//
//	riftsync serve --addr=:8090 --file=/srv/data.bin
//
// # Syncing
//
// The initiator side reads a local file, talks to a remote riftsync serve
// instance, and writes the reconstructed remote file to --out:
//
//	riftsync sync --peer=http://remote:8090 --file=./local.bin --out=./remote.bin
//
// Both sides must agree on --config (or accept the matching defaults);
// mismatched NumHashfns/KeyBits/HashBits surface as protocol.ErrSizeMismatch.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/riftsync/riftsync/protocol"
	"github.com/riftsync/riftsync/transport"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "sync":
		err = runSync(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "riftsync: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: riftsync serve --addr=:8090 --file=PATH [--config=PATH]")
	fmt.Fprintln(os.Stderr, "       riftsync sync --peer=URL --file=PATH --out=PATH [--config=PATH]")
}

func loadConfig(path string) (protocol.SyncConfig, error) {
	cfg := protocol.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8090", "HTTP listen address")
	file := fs.String("file", "", "path to this peer's copy of the file")
	configPath := fs.String("config", "", "optional YAML sync config")
	historyHost := fs.String("history-db-host", "", "optional Postgres host to log session outcomes to")
	historyDB := fs.String("history-db-name", "riftsync", "Postgres database name for session history")
	historyUser := fs.String("history-db-user", "riftsync", "Postgres user for session history")
	historyPassword := fs.String("history-db-password", "", "Postgres password for session history")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("--file is required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	log := slog.Default()
	var history *transport.HistoryStore
	if *historyHost != "" {
		history, err = transport.NewHistoryStore(&transport.HistoryConfig{
			Host:     *historyHost,
			Port:     5432,
			User:     *historyUser,
			Password: *historyPassword,
			Database: *historyDB,
			SSLMode:  "disable",
		})
		if err != nil {
			return fmt.Errorf("connecting history store: %w", err)
		}
		defer history.Close()
	}

	srv := transport.New(transport.ServerConfig{
		ListenAddr:               *addr,
		Log:                      log,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
		GracefulShutdownDuration: 10 * time.Second,
	}, func(ctx context.Context, sessionID string) (*protocol.ResponderSession, error) {
		f, err := os.Open(*file)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", *file, err)
		}
		defer f.Close()
		return protocol.NewResponderSession(cfg, f)
	})
	srv.History = history

	srv.RunInBackground()
	log.Info("riftsync serve listening", "addr", *addr, "file", *file)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	return srv.Shutdown()
}

func runSync(args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	peer := fs.String("peer", "", "base URL of the remote riftsync serve instance")
	file := fs.String("file", "", "path to the local copy of the file")
	out := fs.String("out", "", "path to write the reconstructed remote file to")
	sessionID := fs.String("session", "riftsync-cli", "session identifier to route this sync under")
	configPath := fs.String("config", "", "optional YAML sync config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *peer == "" || *file == "" || *out == "" {
		return fmt.Errorf("--peer, --file and --out are required")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *file, err)
	}
	defer f.Close()

	init, err := protocol.NewInitiatorSession(cfg, f)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	outFile, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", *out, err)
	}
	defer outFile.Close()

	client := transport.NewClient(*peer, *sessionID)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := transport.RunSync(ctx, client, init, outFile); err != nil {
		init.Report.Synchronized = false
		printReport(init.Report)
		return err
	}
	printReport(init.Report)
	return nil
}

func printReport(r protocol.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(r)
}

