package transport

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/riftsync/riftsync/protocol"
)

// HistoryConfig names a Postgres database to log sync session outcomes to.
// Logging is entirely optional: callers that never construct a HistoryStore
// get no persistence at all.
type HistoryConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (c *HistoryConfig) connectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// HistoryStore persists one row per completed sync session, for operators
// who want to track D_hat accuracy and retry rates over time.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens the database, pings it, and runs the (idempotent)
// schema migration.
func NewHistoryStore(cfg *HistoryConfig) (*HistoryStore, error) {
	db, err := sql.Open("postgres", cfg.connectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &HistoryStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *HistoryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_sessions (
		session_id VARCHAR(256) PRIMARY KEY,
		d_hat BIGINT NOT NULL,
		num_buckets INTEGER NOT NULL,
		only_a_blocks INTEGER NOT NULL,
		only_b_blocks INTEGER NOT NULL,
		retries INTEGER NOT NULL,
		synchronized BOOLEAN NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sync_sessions_created ON sync_sessions(created_at);
	`
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordSession logs the final Report of a completed (or abandoned) sync.
func (s *HistoryStore) RecordSession(sessionID string, report protocol.Report) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO sync_sessions
		(session_id, d_hat, num_buckets, only_a_blocks, only_b_blocks, retries, synchronized)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (session_id) DO UPDATE SET
		d_hat = EXCLUDED.d_hat,
		num_buckets = EXCLUDED.num_buckets,
		only_a_blocks = EXCLUDED.only_a_blocks,
		only_b_blocks = EXCLUDED.only_b_blocks,
		retries = EXCLUDED.retries,
		synchronized = EXCLUDED.synchronized
	`
	_, err := s.db.ExecContext(ctx, query, sessionID, report.DHat, report.NumBuckets,
		report.OnlyABlocks, report.OnlyBBlocks, report.Retries, report.Synchronized)
	return err
}

// Close releases the underlying connection pool.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
