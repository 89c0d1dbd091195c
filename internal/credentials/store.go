// Package credentials persists the messaging session's auth material.
//
// Credentials are opaque bytes owned by the protocol client; this package
// only encrypts them at rest and stores them in SQLite.
package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/walink/walink/internal/crypto"
)

// Store is the durable, encrypted credential store.
type Store struct {
	db  *sql.DB
	key *[32]byte
}

// NewStore creates a credential store backed by db, encrypting with a key
// derived from the master secret.
func NewStore(db *sql.DB, masterSecret string) *Store {
	return &Store{
		db:  db,
		key: crypto.DeriveSecretboxKey(masterSecret),
	}
}

// Load returns the stored credentials, or (nil, nil) when none exist yet.
// A nil credential set means the next connect starts a fresh pairing cycle.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM session_credentials WHERE id = 1").Scan(&sealed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	creds, err := crypto.OpenBox(sealed, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return creds, nil
}

// Save encrypts and upserts the credentials.
func (s *Store) Save(ctx context.Context, creds []byte) error {
	sealed, err := crypto.SealBox(creds, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_credentials (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		sealed, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Purge deletes the stored credentials. Deleting an empty store is a no-op.
func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_credentials WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to purge credentials: %w", err)
	}
	return nil
}
