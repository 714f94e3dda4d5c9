package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corveth/warmap/internal/snapshot"
)

func newTestEventStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEventStoreInsertAndLoad(t *testing.T) {
	store := newTestEventStore(t)

	events := []snapshot.RawExchange{
		{Unix: 300, Territory: "Detlas", Guild: "Alpha", Prefix: "ALP"},
		{Unix: 100, Territory: "Ragni", Guild: "Beta", Prefix: "BET"},
		{Unix: 200, Territory: "Detlas", Guild: "Beta", Prefix: "BET"},
	}
	require.NoError(t, store.InsertBatch(events))

	loaded, err := store.LoadSince(0)
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	// Timestamp order regardless of insert order.
	assert.Equal(t, int64(100), loaded[0].Unix)
	assert.Equal(t, "Ragni", loaded[0].Territory)
	assert.Equal(t, int64(300), loaded[2].Unix)
	assert.Equal(t, "ALP", loaded[2].Prefix)
}

func TestEventStoreDuplicatesIgnored(t *testing.T) {
	store := newTestEventStore(t)

	ev := snapshot.RawExchange{Unix: 100, Territory: "Detlas", Guild: "Alpha", Prefix: "ALP"}
	require.NoError(t, store.InsertBatch([]snapshot.RawExchange{ev, ev}))
	// Replaying the same batch must be a no-op.
	require.NoError(t, store.InsertBatch([]snapshot.RawExchange{ev}))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEventStoreEmptyBatch(t *testing.T) {
	store := newTestEventStore(t)
	require.NoError(t, store.InsertBatch(nil))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventStoreLoadSinceFilters(t *testing.T) {
	store := newTestEventStore(t)

	require.NoError(t, store.InsertBatch([]snapshot.RawExchange{
		{Unix: 100, Territory: "Detlas", Guild: "Alpha"},
		{Unix: 200, Territory: "Detlas", Guild: "Beta"},
		{Unix: 300, Territory: "Detlas", Guild: "Alpha"},
	}))

	loaded, err := store.LoadSince(200)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, int64(200), loaded[0].Unix)
}

func TestEventStorePrune(t *testing.T) {
	store := newTestEventStore(t)

	require.NoError(t, store.InsertBatch([]snapshot.RawExchange{
		{Unix: 100, Territory: "Detlas", Guild: "Alpha"},
		{Unix: 200, Territory: "Detlas", Guild: "Beta"},
		{Unix: 300, Territory: "Detlas", Guild: "Alpha"},
	}))

	deleted, err := store.Prune(250)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	loaded, err := store.LoadSince(0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(300), loaded[0].Unix)
}

func TestEventStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	store, err := NewEventStore(path)
	require.NoError(t, err)
	require.NoError(t, store.InsertBatch([]snapshot.RawExchange{
		{Unix: 100, Territory: "Detlas", Guild: "Alpha"},
	}))
	require.NoError(t, store.Close())

	reopened, err := NewEventStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
