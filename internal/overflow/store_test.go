package overflow_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flairnode-agent/internal/model"
	"flairnode-agent/internal/overflow"
)

func items(msgs ...string) []model.QueueItem {
	out := make([]model.QueueItem, len(msgs))
	for i, m := range msgs {
		data, _ := json.Marshal(map[string]string{"message": m})
		out[i] = model.QueueItem{
			Kind:       model.KindLog,
			EnqueuedAt: time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
			Data:       data,
		}
	}
	return out
}

func messages(t *testing.T, in []model.QueueItem) []string {
	t.Helper()
	out := make([]string, len(in))
	for i, it := range in {
		var m map[string]string
		require.NoError(t, json.Unmarshal(it.Data, &m))
		out[i] = m["message"]
	}
	return out
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	store := overflow.NewStore(filepath.Join(t.TempDir(), "missed.json"))

	got, err := store.Load()

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missed.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	store := overflow.NewStore(path)

	got, err := store.Load()

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppend_PreservesOrderAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missed.json")
	store := overflow.NewStore(path)

	require.NoError(t, store.Append(items("a", "b")))
	require.NoError(t, store.Append(items("c")))
	require.NoError(t, store.Append(nil))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, messages(t, got))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

func TestTakeFront(t *testing.T) {
	store := overflow.NewStore(filepath.Join(t.TempDir(), "missed.json"))
	require.NoError(t, store.Append(items("a", "b", "c", "d", "e")))

	taken, left, err := store.TakeFront(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, messages(t, taken))
	assert.Equal(t, 3, left)

	taken, left, err = store.TakeFront(250)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, messages(t, taken))
	assert.Equal(t, 0, left)

	taken, left, err = store.TakeFront(250)
	require.NoError(t, err)
	assert.Empty(t, taken)
	assert.Equal(t, 0, left)
}

func TestAppend_UnwritableDirectoryFails(t *testing.T) {
	store := overflow.NewStore(filepath.Join(t.TempDir(), "missing-dir", "missed.json"))

	err := store.Append(items("a"))

	assert.Error(t, err)
}

func TestPrepend_RestoresTakenBatchInOrder(t *testing.T) {
	store := overflow.NewStore(filepath.Join(t.TempDir(), "missed.json"))
	require.NoError(t, store.Append(items("a", "b", "c", "d")))

	taken, _, err := store.TakeFront(2)
	require.NoError(t, err)
	require.NoError(t, store.Prepend(taken))
	require.NoError(t, store.Append(items("e")))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, messages(t, got))
}

func TestPrepend_EmptyFile(t *testing.T) {
	store := overflow.NewStore(filepath.Join(t.TempDir(), "missed.json"))

	require.NoError(t, store.Prepend(items("x")))
	require.NoError(t, store.Prepend(nil))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, messages(t, got))
}
