package store

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrNoSession = errors.New("no stored session")
	ErrBadCipher = errors.New("stored token cannot be opened")
)

// Session is the locally persisted login state. Tokens are opaque to
// the client; they are sealed at rest and handed to the API and
// channel layers as plain strings.
type Session struct {
	UserID       int64
	Username     string
	Email        string
	AccessToken  string
	RefreshToken string
	ClientID     string
	UpdatedAt    time.Time
}

// Store persists the session in a local SQLite database. Token
// columns are sealed with a secretbox key kept in a 0600 keyfile next
// to the database, so a casual copy of the db file alone is useless.
type Store struct {
	conn *sql.DB
	key  [32]byte
}

// Open creates or opens the credential store under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	key, err := loadOrCreateKey(filepath.Join(dir, "secret.key"))
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", filepath.Join(dir, "credentials.db")+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{conn: conn, key: key}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	_, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		user_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		email TEXT NOT NULL,
		access_token BLOB NOT NULL,
		refresh_token BLOB NOT NULL,
		client_id TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	return err
}

// Save replaces the stored session.
func (s *Store) Save(sess Session) error {
	access, err := s.seal(sess.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(sess.RefreshToken)
	if err != nil {
		return err
	}

	_, err = s.conn.Exec(
		`INSERT OR REPLACE INTO sessions (id, user_id, username, email, access_token, refresh_token, client_id, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?)`,
		sess.UserID, sess.Username, sess.Email, access, refresh, sess.ClientID,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Load returns the stored session, or ErrNoSession.
func (s *Store) Load() (*Session, error) {
	var (
		sess            Session
		access, refresh []byte
		updatedAt       string
	)
	err := s.conn.QueryRow(
		"SELECT user_id, username, email, access_token, refresh_token, client_id, updated_at FROM sessions WHERE id = 1",
	).Scan(&sess.UserID, &sess.Username, &sess.Email, &access, &refresh, &sess.ClientID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	if sess.AccessToken, err = s.open(access); err != nil {
		return nil, err
	}
	if sess.RefreshToken, err = s.open(refresh); err != nil {
		return nil, err
	}
	sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &sess, nil
}

// Clear removes the stored session. Clearing an empty store is a
// no-op.
func (s *Store) Clear() error {
	_, err := s.conn.Exec("DELETE FROM sessions WHERE id = 1")
	return err
}

func (s *Store) seal(plaintext string) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

func (s *Store) open(sealed []byte) (string, error) {
	if len(sealed) < 24 {
		return "", ErrBadCipher
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return "", ErrBadCipher
	}
	return string(plaintext), nil
}

func loadOrCreateKey(path string) ([32]byte, error) {
	var key [32]byte

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != 32 {
			return key, fmt.Errorf("keyfile %s: expected 32 bytes, got %d", path, len(data))
		}
		copy(key[:], data)
		return key, nil
	}
	if !os.IsNotExist(err) {
		return key, err
	}

	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return key, err
	}
	return key, nil
}
