package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ligun0805/lurantis-go/internal/logger"
)

// SchemaVersion tracks the database schema version for migrations
const SchemaVersion = 1

// Record is the durable part of a wallet session on one chain.
type Record struct {
	ChainID   uint64
	Mode      string
	Address   string
	UpdatedAt time.Time
}

// Store manages wallet session persistence in SQLite
type Store struct {
	db *sql.DB
}

// Open creates or opens the session database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		logger.Logger.Warn("Failed to set session database permissions", "error", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS wallet_sessions (
		chain_id INTEGER PRIMARY KEY,
		mode TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		schema_version INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save upserts the session for rec.ChainID.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.ChainID == 0 {
		return errors.New("chain id is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	query := `
	INSERT INTO wallet_sessions (chain_id, mode, address, updated_at, schema_version)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(chain_id) DO UPDATE SET
		mode = excluded.mode,
		address = excluded.address,
		updated_at = excluded.updated_at,
		schema_version = excluded.schema_version
	`
	_, err := s.db.ExecContext(ctx, query,
		int64(rec.ChainID), rec.Mode, strings.ToLower(rec.Address), rec.UpdatedAt.Format(time.RFC3339Nano), SchemaVersion)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logger.Logger.Debug("Session saved", "chain_id", rec.ChainID, "mode", rec.Mode)
	return nil
}

// Load returns the session for chainID; ok is false when none was saved.
func (s *Store) Load(ctx context.Context, chainID uint64) (rec Record, ok bool, err error) {
	var (
		id        int64
		updatedAt string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT chain_id, mode, address, updated_at FROM wallet_sessions WHERE chain_id = ?`, int64(chainID),
	).Scan(&id, &rec.Mode, &rec.Address, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to load session: %w", err)
	}
	rec.ChainID = uint64(id)
	if t, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
		rec.UpdatedAt = t
	}
	return rec, true, nil
}

// Delete forgets the session for chainID.
func (s *Store) Delete(ctx context.Context, chainID uint64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wallet_sessions WHERE chain_id = ?`, int64(chainID)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
