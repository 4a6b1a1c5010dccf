package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the common Store contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "PVTI_1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "PVTI_1", "line a\nline b"))
	got, err := s.Get(ctx, "PVTI_1")
	require.NoError(t, err)
	assert.Equal(t, "line a\nline b", got)

	require.NoError(t, s.Put(ctx, "PVTI_1", ""))
	got, err = s.Get(ctx, "PVTI_1")
	require.NoError(t, err)
	assert.Equal(t, "", got, "an empty snapshot is still a snapshot")

	require.NoError(t, s.Put(ctx, DiffKey("PVTI_1"), "++x"))
	require.NoError(t, s.Delete(ctx, "PVTI_1"))
	_, err = s.Get(ctx, "PVTI_1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "PVTI_1"), ErrNotFound)

	diff, err := s.Get(ctx, DiffKey("PVTI_1"))
	require.NoError(t, err)
	assert.Equal(t, "++x", diff)

	require.Error(t, s.Put(ctx, " ", "x"), "blank ids are rejected")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreKeepsIDsInsideRoot(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "snaps")
	s, err := NewFileStore(root)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "../escape", "x"))
	require.NoError(t, s.Put(ctx, "notes/today.md", "y"))

	_, err = os.Stat(filepath.Join(dir, "escape.snap"))
	assert.True(t, os.IsNotExist(err), "id must not escape the root")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	got, err := s.Get(ctx, "notes/today.md")
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client)
	exerciseStore(t, s)

	require.NoError(t, s.Put(context.Background(), "k", "v"))
	raw, err := mr.Get("annotator:snapshot:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://" + mr.Addr())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	_, err = NewRedisStore("not a url")
	require.Error(t, err)
}

type countingStore struct {
	*MemoryStore
	gets    int
	failPut bool
}

func (c *countingStore) Get(ctx context.Context, id string) (string, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, id)
}

func (c *countingStore) Put(ctx context.Context, id, content string) error {
	if c.failPut {
		return errors.New("backend down")
	}
	return c.MemoryStore.Put(ctx, id, content)
}

func TestCachedStore(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	s, err := NewCachedStore(backing, 8)
	require.NoError(t, err)
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", "1"))
	before := backing.gets
	for i := 0; i < 3; i++ {
		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "1", got)
	}
	assert.Equal(t, before, backing.gets, "cached reads must not hit the backend")
	assert.GreaterOrEqual(t, s.Stats().Hits, int64(3))
}

func TestCachedStoreDropsEntryOnFailedWrite(t *testing.T) {
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	s, err := NewCachedStore(backing, 8)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", "old"))
	backing.failPut = true
	require.Error(t, s.Put(ctx, "a", "new"))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "old", got)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	st, err = Open(ctx, Config{Backend: "file", Dir: t.TempDir(), CacheSize: 4})
	require.NoError(t, err)
	assert.IsType(t, &CachedStore{}, st)

	_, err = Open(ctx, Config{Backend: "tape"})
	require.Error(t, err)

	_, err = Open(ctx, Config{Backend: "s3"})
	require.Error(t, err, "s3 without endpoint must fail")
}

func TestGetOrEmpty(t *testing.T) {
	s := NewMemoryStore()
	v, err := GetOrEmpty(context.Background(), s, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}
