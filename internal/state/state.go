// Package state holds the client's durable local slots: the last known chat
// room, the logged-in user identity, and the cached hobby list. The room slot
// is a resumption hint only; callers cross-check the backend before trusting
// it.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Slot keys.
const (
	keyUserID     = "user_id"
	keyLastRoomID = "last_room_id"
	keyHobbies    = "hobbies"
)

const schema = `
CREATE TABLE IF NOT EXISTS slots (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the sqlite-backed local state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the local state database.
// path may be ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping state db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UserID returns the stored identity, or "" when logged out.
func (s *Store) UserID(ctx context.Context) (string, error) {
	return s.get(ctx, keyUserID)
}

// SetUserID stores the logged-in identity.
func (s *Store) SetUserID(ctx context.Context, id string) error {
	return s.set(ctx, keyUserID, id)
}

// LastRoomID returns the persisted room pointer, or "" when there is none.
func (s *Store) LastRoomID(ctx context.Context) (string, error) {
	return s.get(ctx, keyLastRoomID)
}

// SetLastRoomID writes the room pointer. Written on match and on successful
// join; the last writer wins, which is fine because correct operation writes
// the same value.
func (s *Store) SetLastRoomID(ctx context.Context, roomID string) error {
	return s.set(ctx, keyLastRoomID, roomID)
}

// ClearLastRoomID drops the room pointer. Called when a chat ends; a plain
// leave keeps the pointer so the user can rejoin.
func (s *Store) ClearLastRoomID(ctx context.Context) error {
	return s.del(ctx, keyLastRoomID)
}

// Hobbies returns the cached hobby list.
func (s *Store) Hobbies(ctx context.Context) ([]string, error) {
	raw, err := s.get(ctx, keyHobbies)
	if err != nil || raw == "" {
		return nil, err
	}
	var hobbies []string
	if err := json.Unmarshal([]byte(raw), &hobbies); err != nil {
		return nil, fmt.Errorf("decode hobbies: %w", err)
	}
	return hobbies, nil
}

// SetHobbies caches the hobby list delivered at login.
func (s *Store) SetHobbies(ctx context.Context, hobbies []string) error {
	raw, err := json.Marshal(hobbies)
	if err != nil {
		return fmt.Errorf("encode hobbies: %w", err)
	}
	return s.set(ctx, keyHobbies, string(raw))
}

// Reset clears every slot. Used on logout.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots`); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read slot %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear slot %s: %w", key, err)
	}
	return nil
}
