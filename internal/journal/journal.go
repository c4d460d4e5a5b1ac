// Package journal provides the local SQLite journal: a bounded log of
// recently emitted telemetry snapshots plus a small agent-state table
// for data that must survive restarts — the instance identity and the
// system reset counter. It is diagnostic storage, not the transport;
// the broker remains the system of record for consumers.
package journal

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/visorlabs/headsetd/internal/telemetry"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

const (
	keyInstanceID = "instance_id"
	keyResetCount = "reset_count"
)

// Store is the SQLite-backed journal. All public methods are safe for
// concurrent use (SQLite serializes writes).
type Store struct {
	db   *sql.DB
	keep int
}

// Open creates or opens the journal at dbPath, retaining at most keep
// snapshots. The schema is created automatically on first use.
func Open(dbPath string, keep int) (*Store, error) {
	if keep <= 0 {
		keep = 1000
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	s := &Store{db: db, keep: keep}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		frame_id     INTEGER NOT NULL,
		timestamp_us INTEGER NOT NULL,
		payload      TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_frame ON snapshots (frame_id);

	CREATE TABLE IF NOT EXISTS agent_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append journals one snapshot in its wire encoding and prunes the
// oldest rows beyond the retention limit.
func (s *Store) Append(snap *telemetry.Snapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (frame_id, timestamp_us, payload, created_at)
		 VALUES (?, ?, ?, ?)`,
		snap.FrameID, snap.TimestampUS, string(telemetry.Encode(snap)),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("append snapshot %d: %w", snap.FrameID, err)
	}

	_, err = s.db.Exec(
		`DELETE FROM snapshots WHERE rowid <= (
			SELECT MAX(rowid) FROM snapshots
		 ) - ?`, s.keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}

// Recent returns up to n journaled payloads, newest first.
func (s *Store) Recent(n int) ([][]byte, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM snapshots ORDER BY rowid DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent snapshots: %w", err)
	}
	defer rows.Close()

	var payloads [][]byte
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		payloads = append(payloads, []byte(p))
	}
	return payloads, rows.Err()
}

// Count returns the number of journaled snapshots.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return n, nil
}

// InstanceID returns this agent's persistent identity, minting and
// storing a new UUID on first use.
func (s *Store) InstanceID() (string, error) {
	id, err := s.getState(keyInstanceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.setState(keyInstanceID, id); err != nil {
		return "", err
	}
	return id, nil
}

// ResetCount returns the persisted system reset counter.
func (s *Store) ResetCount() (uint32, error) {
	v, err := s.getState(keyResetCount)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse reset count %q: %w", v, err)
	}
	return uint32(n), nil
}

// SetResetCount persists the system reset counter.
func (s *Store) SetResetCount(n uint32) error {
	return s.setState(keyResetCount, strconv.FormatUint(uint64(n), 10))
}

func (s *Store) getState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM agent_state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) setState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO agent_state (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}
