package credentials

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/walink/walink/internal/database"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db.DB, "test-master-secret")
}

func TestStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, creds, "an empty store means a fresh pairing, not an error")
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []byte("auth-material-v1")))

	creds, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("auth-material-v1"), creds)

	// Saving again overwrites the single row.
	require.NoError(t, store.Save(ctx, []byte("auth-material-v2")))
	creds, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("auth-material-v2"), creds)
}

func TestStore_Purge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, []byte("auth-material")))
	require.NoError(t, store.Purge(ctx))

	creds, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, creds)

	// Purging an already-empty store is a no-op.
	require.NoError(t, store.Purge(ctx))
}

func TestStore_CorruptCiphertextFailsLoad(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db.DB, "test-master-secret")
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, []byte("auth-material")))

	_, err = db.Exec("UPDATE session_credentials SET data = ? WHERE id = 1", []byte("garbage"))
	require.NoError(t, err)

	_, err = store.Load(ctx)
	require.Error(t, err)
}

func TestStore_WrongKeyFailsLoad(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, NewStore(db.DB, "secret-a").Save(ctx, []byte("auth-material")))

	_, err = NewStore(db.DB, "secret-b").Load(ctx)
	require.Error(t, err)
}
