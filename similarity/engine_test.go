package similarity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/index"
	"github.com/viant/filesearch/index/bruteforce"
)

type staticSource struct {
	entries []catalog.Entry
	err     error
	calls   int
}

func (s *staticSource) ListAll(context.Context) ([]catalog.Entry, error) {
	s.calls++
	return s.entries, s.err
}

func entry(id int64, path string, vec []float32) catalog.Entry {
	return catalog.Entry{
		File:      catalog.FileRecord{ID: id, Path: path, Name: filepath.Base(path), Extension: filepath.Ext(path)},
		Vector:    vec,
		HasVector: vec != nil,
	}
}

func TestSearch_ToyScenario(t *testing.T) {
	src := &staticSource{entries: []catalog.Entry{
		entry(1, "/A.txt", []float32{1, 0}),
		entry(2, "/B.txt", []float32{0, 1}),
		entry(3, "/C.txt", []float32{0.7, 0.7}),
	}}
	results, err := New(src).Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/A.txt", results[0].Path)
	assert.Equal(t, int64(1), results[0].FileID)
	assert.Equal(t, "A.txt", results[0].Name)
	assert.Equal(t, ".txt", results[0].Extension)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "/C.txt", results[1].Path)
	assert.InDelta(t, 0.7071, results[1].Score, 1e-3)
}

func TestSearch_TopKZeroSkipsCatalog(t *testing.T) {
	src := &staticSource{}
	results, err := New(src).Search(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, src.calls)
}

func TestSearch_EmptyAndPartialCorpus(t *testing.T) {
	results, err := New(&staticSource{}).Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	src := &staticSource{entries: []catalog.Entry{entry(1, "/pending.txt", nil)}}
	results, err = New(src).Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_FullCorpusSorted(t *testing.T) {
	src := &staticSource{entries: []catalog.Entry{
		entry(1, "/d", []float32{-1, 0}),
		entry(2, "/c", []float32{1, 1}),
		entry(3, "/b", []float32{1, 0}),
		entry(4, "/a", []float32{2, 0}),
		entry(5, "/e", nil),
	}}
	results, err := New(src).Search(context.Background(), []float32{1, 0}, 100)
	require.NoError(t, err)
	require.Len(t, results, 4)
	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.Path
	}
	assert.Equal(t, []string{"/a", "/b", "/c", "/d"}, got)
}

func TestSearch_SourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(&staticSource{err: boom}).Search(context.Background(), []float32{1}, 3)
	assert.ErrorIs(t, err, boom)
}

func TestSearch_WithIndex(t *testing.T) {
	src := &staticSource{entries: []catalog.Entry{
		entry(1, "/far", []float32{10, 0}),
		entry(2, "/near", []float32{1, 0}),
	}}
	eng := New(src, WithIndex(func() index.Index { return bruteforce.New(bruteforce.WithMetric(bruteforce.Euclidean)) }))
	results, err := eng.Search(context.Background(), []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/near", results[0].Path)
}

func TestSearch_AgainstCatalog(t *testing.T) {
	ctx := context.Background()
	cat, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer cat.Close()

	for path, vec := range map[string][]float32{"/A": {1, 0}, "/B": {0, 1}, "/C": {0.7, 0.7}} {
		_, err := cat.Put(ctx, catalog.FileInfo{Path: path, Name: path[1:], LastModified: 1}, vec)
		require.NoError(t, err)
	}
	results, err := New(cat).Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/A", results[0].Path)
	assert.Equal(t, "/C", results[1].Path)
}

func TestSnapshot(t *testing.T) {
	items := Snapshot([]catalog.Entry{entry(1, "/x", []float32{1}), entry(2, "/y", nil)})
	require.Len(t, items, 1)
	assert.Equal(t, int64(1), items[0].ID)
}
