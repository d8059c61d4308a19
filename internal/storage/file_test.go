package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/strongroom/internal/errors"
	"github.com/allisson/strongroom/internal/query"
	"github.com/allisson/strongroom/internal/secrets/domain"
)

func newCreatedFileStore(t *testing.T) *FileStore {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "group.strongroom"), "passphrase")
	require.NoError(t, store.Create(context.Background()))
	return store
}

func TestFileStoreLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("create once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "group.strongroom")
		store := NewFileStore(path, "passphrase")

		exists, err := store.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, store.Create(ctx))
		assert.ErrorIs(t, store.Create(ctx), apperrors.ErrAlreadyExists)

		arn, err := store.ARN(ctx)
		require.NoError(t, err)
		assert.Contains(t, arn, "file://")

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("destroy removes the file", func(t *testing.T) {
		store := newCreatedFileStore(t)

		require.NoError(t, store.Destroy(ctx))
		assert.ErrorIs(t, store.Destroy(ctx), apperrors.ErrDoesNotExist)
	})

	t.Run("wrong passphrase cannot open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "group.strongroom")
		store := NewFileStore(path, "passphrase")
		require.NoError(t, store.Create(ctx))

		other := NewFileStore(path, "wrong")
		_, err := other.KeySet(ctx)
		assert.ErrorIs(t, err, apperrors.ErrIntegrity)
	})
}

func TestFileStoreEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("entries survive reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "group.strongroom")
		store := NewFileStore(path, "passphrase")
		require.NoError(t, store.Create(ctx))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled)))

		reopened := NewFileStore(path, "passphrase")
		entries, err := reopened.Stream(ctx, nameFilter("api-key"), QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, []byte("api-key-payload"), entries[0].EncryptedPayload)
	})

	t.Run("create rejects duplicate version", func(t *testing.T) {
		store := newCreatedFileStore(t)
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled)))

		err := store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateDisabled))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	})

	t.Run("update requires matching digest", func(t *testing.T) {
		store := newCreatedFileStore(t)
		entry := testEntry(t, "api-key", 1, domain.StateEnabled)
		require.NoError(t, store.CreateEntry(ctx, entry))

		updated := entry.Clone()
		updated.State = domain.StateDisabled
		require.NoError(t, store.UpdateEntry(ctx, updated, entry.Digest()))

		stale := entry.Clone()
		stale.EncryptedPayload = []byte("stale")
		err := store.UpdateEntry(ctx, stale, []byte("wrong-digest"))
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("delete entries reports count", func(t *testing.T) {
		store := newCreatedFileStore(t)
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled)))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 2, domain.StateEnabled)))

		id, err := domain.NewSecretIdentifier("api-key")
		require.NoError(t, err)

		count, err := store.DeleteEntries(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		count, err = store.DeleteEntries(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("attribute condition alone scans every secret", func(t *testing.T) {
		store := newCreatedFileStore(t)
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateDisabled)))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 2, domain.StateEnabled)))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "other", 1, domain.StateEnabled)))

		filter := &Filter{Attr: Schema.State.Equal(query.StringValue("1"))}
		entries, err := store.Stream(ctx, filter, QueryOptions{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "api-key", entries[0].Identifier.Name())
		assert.Equal(t, "other", entries[1].Identifier.Name())

		all, err := store.Stream(ctx, &Filter{}, QueryOptions{})
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("stream honors sort and reverse", func(t *testing.T) {
		store := newCreatedFileStore(t)
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 1, domain.StateEnabled)))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 2, domain.StateEnabled)))
		require.NoError(t, store.CreateEntry(ctx, testEntry(t, "api-key", 3, domain.StateEnabled)))

		filter := &Filter{
			Key: query.NewKeyCondition(Schema.Name.Equal(query.StringValue("api-key"))).
				WithSort(Schema.Version.Less(query.NumberValue(3))),
		}
		entries, err := store.Stream(ctx, filter, QueryOptions{Reverse: true})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, uint64(2), entries[0].Version)
		assert.Equal(t, uint64(1), entries[1].Version)
	})
}
