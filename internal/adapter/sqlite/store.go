// Package sqlite persists connection profiles in a local SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"netbus"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set state db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set state db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS connections (
	uuid TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	conn_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize connections schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ListConnections returns the stored profiles in the order they were saved.
func (s *Store) ListConnections() ([]netbus.Connection, error) {
	rows, err := s.db.Query(`SELECT uuid, conn_json FROM connections ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	out := make([]netbus.Connection, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		var conn netbus.Connection
		if err := json.Unmarshal([]byte(payload), &conn); err != nil {
			return nil, fmt.Errorf("unmarshal connection %s: %w", id, err)
		}
		if conn.UUID == uuid.Nil {
			if conn.UUID, err = uuid.Parse(id); err != nil {
				return nil, fmt.Errorf("parse connection uuid %q: %w", id, err)
			}
		}
		out = append(out, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection rows: %w", err)
	}
	return out, nil
}

// GetConnection returns the profile stored under id.
func (s *Store) GetConnection(id uuid.UUID) (netbus.Connection, bool, error) {
	var payload string
	err := s.db.QueryRow(`SELECT conn_json FROM connections WHERE uuid = ?`, id.String()).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return netbus.Connection{}, false, nil
		}
		return netbus.Connection{}, false, fmt.Errorf("query connection %s: %w", id, err)
	}
	var conn netbus.Connection
	if err := json.Unmarshal([]byte(payload), &conn); err != nil {
		return netbus.Connection{}, false, fmt.Errorf("unmarshal connection %s: %w", id, err)
	}
	return conn, true, nil
}

// SaveConnections replaces every stored profile with conns in one
// transaction.
func (s *Store) SaveConnections(conns []netbus.Connection) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save connections: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.Exec(`DELETE FROM connections`); err != nil {
		return fmt.Errorf("clear connections: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for i, conn := range conns {
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("save connection: %w", err)
		}
		payload, err := json.Marshal(conn)
		if err != nil {
			return fmt.Errorf("marshal connection %s: %w", conn.UUID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO connections (uuid, position, conn_json, updated_at) VALUES (?, ?, ?, ?)`,
			conn.UUID.String(), i, string(payload), now,
		); err != nil {
			return fmt.Errorf("save connection %s: %w", conn.UUID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save connections: %w", err)
	}
	return nil
}
