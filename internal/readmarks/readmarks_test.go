package readmarks

import (
	"io"
	"testing"
	"time"

	"github.com/practice-sem-2/dm-service/internal/localstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(s localstore.Storage) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(s, logger)
}

func TestStore_MarkThenGet(t *testing.T) {
	store := newStore(localstore.NewMemory())

	before := time.Now()
	require.NoError(t, store.Mark("chat-1"))

	mark, ok := store.Get("chat-1")
	require.True(t, ok)
	assert.False(t, mark.Before(before.Truncate(time.Millisecond)), "marker is at least the mark time")
	assert.True(t, mark.After(before.Add(Skew-time.Second)), "marker is dated ahead")
}

func TestStore_MarkKeepsOtherKeys(t *testing.T) {
	store := newStore(localstore.NewMemory())
	now := time.UnixMilli(1_700_000_000_000)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Mark("chat-1"))
	first, _ := store.Get("chat-1")

	now = now.Add(time.Minute)
	require.NoError(t, store.Mark("chat-2"))

	again, ok := store.Get("chat-1")
	assert.True(t, ok)
	assert.Equal(t, first, again)
	assert.Len(t, store.All(), 2)

	second, _ := store.Get("chat-2")
	assert.Equal(t, now.Add(Skew).UnixMilli(), second.UnixMilli())
}

func TestStore_Absent(t *testing.T) {
	store := newStore(localstore.NewMemory())
	_, ok := store.Get("nope")
	assert.False(t, ok)
}

func TestStore_CorruptBlob(t *testing.T) {
	mem := localstore.NewMemory()
	require.NoError(t, mem.Set(StorageKey, "{not json"))
	store := newStore(mem)

	assert.Empty(t, store.All())
	require.NoError(t, store.Mark("chat-1"))
	_, ok := store.Get("chat-1")
	assert.True(t, ok, "a corrupt blob is replaced on the next mark")
}
