package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "filesearch.yaml")
	body := fmt.Sprintf("database: %s\nembedder:\n  provider: hash\n  dimension: 32\nlog:\n  level: error\n  format: text\n%s",
		filepath.Join(dir, "cortex.db"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_IndexSearchRecentStats(t *testing.T) {
	work := t.TempDir()
	cfg := writeConfig(t, work, "")
	docs := filepath.Join(work, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "taxes.txt"), []byte("tax return deductions receipts"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "trip.md"), []byte("mountain hiking trip itinerary"), 0o644))

	code, out, errOut := runCmd(t, "-config", cfg, "index", docs)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "discovered: 2")
	assert.Contains(t, out, "embedded: 2")

	code, out, _ = runCmd(t, "-config", cfg, "index", docs)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "unchanged: 2")

	code, out, errOut = runCmd(t, "-config", cfg, "search", "-k", "1", "hiking", "trip")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "trip.md")
	assert.NotContains(t, out, "taxes.txt")

	code, out, _ = runCmd(t, "-config", cfg, "search", "-json", "tax")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"path"`)

	code, out, _ = runCmd(t, "-config", cfg, "recent", "-n", "5")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "taxes.txt")
	assert.Contains(t, out, "trip.md")

	code, out, _ = runCmd(t, "-config", cfg, "stats")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "files: 2")
	assert.Contains(t, out, "dimension: 32")

	code, out, _ = runCmd(t, "-config", cfg, "forget", filepath.Join(docs, "trip.md"))
	require.Equal(t, 0, code)
	assert.Contains(t, out, "removed")
}

func TestRun_Errors(t *testing.T) {
	work := t.TempDir()
	cfg := writeConfig(t, work, "")

	code, _, _ := runCmd(t)
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "-config", cfg, "frobnicate")
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "-config", cfg, "search")
	assert.Equal(t, 2, code)

	code, _, _ = runCmd(t, "-config", cfg, "index", filepath.Join(work, "missing"))
	assert.Equal(t, 1, code)

	bad := writeConfig(t, work, "top_k: 0\n")
	code, _, errOut := runCmd(t, "-config", bad, "stats")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "top_k")
}

func TestRun_CatalogOpenFailureIsFatal(t *testing.T) {
	work := t.TempDir()
	path := filepath.Join(work, "filesearch.yaml")
	body := fmt.Sprintf("database: %s\nlog:\n  level: error\n", filepath.Join(work, "no", "such", "dir", "cortex.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	code, _, _ := runCmd(t, "-config", path, "stats")
	assert.Equal(t, 1, code)
}

func TestRun_PrintConfig(t *testing.T) {
	cfg := writeConfig(t, t.TempDir(), "top_k: 9\n")
	code, out, _ := runCmd(t, "-config", cfg, "config")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "top_k: 9")
	assert.Contains(t, out, "provider: hash")
}

func TestRun_SaveConfig(t *testing.T) {
	work := t.TempDir()
	cfg := writeConfig(t, work, "top_k: 7\n")
	target := filepath.Join(work, "out", "saved.yaml")

	code, out, errOut := runCmd(t, "-config", cfg, "config", target)
	require.Equal(t, 0, code, errOut)
	assert.Empty(t, out)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "top_k: 7")

	code, out, _ = runCmd(t, "-config", target, "config")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "top_k: 7")
	assert.Contains(t, out, "provider: hash")
}

func TestRun_DefaultExtensionsFollowExtractors(t *testing.T) {
	work := t.TempDir()
	cfg := writeConfig(t, work, "")
	docs := filepath.Join(work, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.txt"), []byte("meeting notes agenda"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "main.go"), []byte("package main"), 0o644))

	code, out, errOut := runCmd(t, "-config", cfg, "index", docs)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "discovered: 1")
}
