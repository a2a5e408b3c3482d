package bunstore_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-authsync/store/bunstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *bunstore.Store {
	t.Helper()
	db, err := bunstore.Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := bunstore.New(db)
	require.NoError(t, store.Init(context.Background()))
	require.NotNil(t, store.Repo())
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "idp-auth-token.main", `{"access_token":"abc"}`))

	value, ok, err := store.Get(ctx, "idp-auth-token.main")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"access_token":"abc"}`, value)
}

func TestStore_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "key", "first"))
	require.NoError(t, store.Set(ctx, "key", "second"))

	value, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", value)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"key"}, keys)
}

func TestStore_DeleteAndKeys(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Set(ctx, "b", "2"))
	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Set(ctx, "c", "3"))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, store.Delete(ctx, "b"))
	keys, err = store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, keys)

	// Deleting a missing key is a no-op.
	require.NoError(t, store.Delete(ctx, "missing"))
}
