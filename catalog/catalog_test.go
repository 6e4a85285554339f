package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/filesearch/engine"
)

func openTestCatalog(t *testing.T, opts ...Option) (*Catalog, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	c, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func info(path string, modified int64) FileInfo {
	return FileInfo{Path: path, Name: filepath.Base(path), Extension: filepath.Ext(path), LastModified: modified}
}

func TestUpsertFile_Idempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	id1, err := c.UpsertFile(ctx, info("/docs/a.txt", 100))
	require.NoError(t, err)
	id2, err := c.UpsertFile(ctx, info("/docs/a.txt", 100))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	meta, err := c.ListMeta(ctx, 0)
	require.NoError(t, err)
	require.Len(t, meta, 1)
	assert.Equal(t, int64(100), meta[0].LastModified)
}

func TestUpsertFile_MonotonicTimestamp(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	id, err := c.UpsertFile(ctx, info("/docs/a.txt", 100))
	require.NoError(t, err)

	// Newer timestamp updates the row in place.
	updated := FileInfo{Path: "/docs/a.txt", Name: "renamed.md", Extension: ".md", LastModified: 200}
	id2, err := c.UpsertFile(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	rec, ok, err := c.Get(ctx, "/docs/a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "renamed.md", rec.Name)
	assert.Equal(t, ".md", rec.Extension)
	assert.Equal(t, int64(200), rec.LastModified)

	// Older timestamp is ignored.
	_, err = c.UpsertFile(ctx, info("/docs/a.txt", 150))
	require.NoError(t, err)
	rec, _, err = c.Get(ctx, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(200), rec.LastModified)
	assert.Equal(t, "renamed.md", rec.Name)
}

func TestIsStale(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	stale, err := c.IsStale(ctx, "/docs/a.txt", 100)
	require.NoError(t, err)
	assert.True(t, stale, "unknown path must be stale")

	_, err = c.UpsertFile(ctx, info("/docs/a.txt", 100))
	require.NoError(t, err)

	for _, tc := range []struct {
		candidate int64
		want      bool
	}{
		{99, false},
		{100, false},
		{101, true},
	} {
		stale, err := c.IsStale(ctx, "/docs/a.txt", tc.candidate)
		require.NoError(t, err)
		assert.Equal(t, tc.want, stale, "candidate %d", tc.candidate)
	}
}

func TestSetEmbedding_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	id, err := c.UpsertFile(ctx, info("/docs/a.txt", 1))
	require.NoError(t, err)
	vec := []float32{0.125, -3.5, 1e-7, 42}
	require.NoError(t, c.SetEmbedding(ctx, id, vec))
	assert.Equal(t, 4, c.Dimension())

	entries, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].HasVector)
	assert.InDeltaSlice(t, vec, entries[0].Vector, 1e-9)

	// Replace.
	require.NoError(t, c.SetEmbedding(ctx, id, []float32{1, 2, 3, 4}))
	entries, err = c.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, entries[0].Vector)
}

func TestSetEmbedding_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	a, err := c.UpsertFile(ctx, info("/a.txt", 1))
	require.NoError(t, err)
	b, err := c.UpsertFile(ctx, info("/b.txt", 1))
	require.NoError(t, err)

	require.NoError(t, c.SetEmbedding(ctx, a, []float32{1, 0, 0}))
	err = c.SetEmbedding(ctx, b, []float32{1, 0})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Actual)

	err = c.SetEmbedding(ctx, b, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSetEmbedding_UnknownFile(t *testing.T) {
	c, _ := openTestCatalog(t)
	err := c.SetEmbedding(context.Background(), 999, []float32{1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAll_MissingVectorIsExplicit(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	_, err := c.UpsertFile(ctx, info("/b.txt", 1))
	require.NoError(t, err)
	_, err = c.Put(ctx, info("/a.txt", 1), []float32{0, 0})
	require.NoError(t, err)

	entries, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a.txt", entries[0].File.Path)
	assert.True(t, entries[0].HasVector)
	assert.Equal(t, []float32{0, 0}, entries[0].Vector)
	assert.Equal(t, "/b.txt", entries[1].File.Path)
	assert.False(t, entries[1].HasVector)
	assert.Nil(t, entries[1].Vector)
}

func TestListAll_UndecodableVectorIsMissing(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	a, err := c.Put(ctx, info("/a.txt", 1), []float32{1, 2})
	require.NoError(t, err)
	_, err = c.Put(ctx, info("/b.txt", 1), []float32{3, 4})
	require.NoError(t, err)
	_, err = c.db.ExecContext(ctx, `UPDATE embeddings SET vector = x'010203' WHERE file_id = ?`, a.ID)
	require.NoError(t, err)

	entries, err := c.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/a.txt", entries[0].File.Path)
	assert.False(t, entries[0].HasVector)
	assert.Nil(t, entries[0].Vector)
	assert.True(t, entries[1].HasVector)
	assert.Equal(t, []float32{3, 4}, entries[1].Vector)
}

func TestListMeta_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	for path, ts := range map[string]int64{"/a": 10, "/b": 30, "/c": 20, "/d": 30} {
		_, err := c.UpsertFile(ctx, info(path, ts))
		require.NoError(t, err)
	}
	meta, err := c.ListMeta(ctx, 3)
	require.NoError(t, err)
	require.Len(t, meta, 3)
	assert.Equal(t, []string{"/b", "/d", "/c"}, []string{meta[0].Path, meta[1].Path, meta[2].Path})

	all, err := c.ListMeta(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	res, err := c.Put(ctx, info("/a.txt", 10), []float32{1, 0})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Updated)

	// Same timestamp: nothing is written, vector untouched.
	res2, err := c.Put(ctx, info("/a.txt", 10), []float32{0, 1})
	require.NoError(t, err)
	assert.True(t, res2.Skipped)
	assert.Equal(t, res.ID, res2.ID)
	entries, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, entries[0].Vector)

	// Newer timestamp replaces both halves.
	res3, err := c.Put(ctx, info("/a.txt", 11), []float32{0, 1})
	require.NoError(t, err)
	assert.True(t, res3.Updated)
	entries, err = c.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, entries[0].Vector)
	assert.Equal(t, int64(11), entries[0].File.LastModified)

	// Wrong dimension writes nothing, not even the timestamp.
	_, err = c.Put(ctx, info("/a.txt", 12), []float32{1, 2, 3})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	rec, _, err := c.Get(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.LastModified)
}

func TestRemove_Cascades(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	_, err := c.Put(ctx, info("/a.txt", 1), []float32{1, 1})
	require.NoError(t, err)
	removed, err := c.Remove(ctx, "/a.txt")
	require.NoError(t, err)
	assert.True(t, removed)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
	assert.Equal(t, 0, stats.Embedded, "embedding must be removed with its file")

	removed, err = c.Remove(ctx, "/a.txt")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestReopen_KeepsRowsAndDimension(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	c, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = c.Put(ctx, info("/a.txt", 1), []float32{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = Open(ctx, path)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 3, c.Dimension())
	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 1, Embedded: 1, Dimension: 3}, stats)

	_, err = c.Put(ctx, info("/b.txt", 1), []float32{1, 2})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestWithDimension(t *testing.T) {
	ctx := context.Background()
	c, path := openTestCatalog(t, WithDimension(2))
	assert.Equal(t, 2, c.Dimension())

	_, err := c.Put(ctx, info("/a.txt", 1), []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	require.NoError(t, c.Close())

	_, err = Open(ctx, path, WithDimension(3))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpen_StorageError(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestNew_InMemory(t *testing.T) {
	db, err := engine.Open(engine.Memory)
	require.NoError(t, err)
	defer db.Close()

	c, err := New(context.Background(), db)
	require.NoError(t, err)
	_, err = c.Put(context.Background(), info("/a.txt", 1), []float32{1})
	require.NoError(t, err)
	require.NoError(t, c.Close(), "Close must not close a borrowed db")
	require.NoError(t, db.Ping())
}

// TestPut_ConcurrentReaders checks that a reader never observes a file whose
// timestamp moved ahead of its embedding.
func TestPut_ConcurrentReaders(t *testing.T) {
	ctx := context.Background()
	c, _ := openTestCatalog(t)

	_, err := c.Put(ctx, info("/a.txt", 1), []float32{1, 1})
	require.NoError(t, err)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ts := int64(2); ts <= rounds; ts++ {
			// The vector encodes its timestamp so readers can cross-check.
			_, err := c.Put(ctx, info("/a.txt", ts), []float32{float32(ts), 1})
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < rounds; i++ {
		entries, err := c.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, float32(entries[0].File.LastModified), entries[0].Vector[0])
	}
	wg.Wait()
}
