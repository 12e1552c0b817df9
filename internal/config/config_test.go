package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/arbor/internal/pipeline"
	"github.com/jward/arbor/internal/search"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_MatchesComponentDefaults(t *testing.T) {
	t.Parallel()
	cfg := Default()

	assert.Equal(t, pipeline.DefaultOptions(), cfg.PipelineOptions())
	assert.Equal(t, search.DefaultWeights(), cfg.SearchWeights())
	assert.Equal(t, search.DefaultTTL, cfg.CacheTTL.Std())
	assert.True(t, cfg.AutoSave)
	assert.Empty(t, cfg.SnapshotPath)
}

func TestLoad_OverridesListedKeysOnly(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), `
batch_size: 25
debounce_delay: "50ms"
snapshot_path: ".arbor/graph.json"
search:
  text_similarity: 1.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 50*time.Millisecond, cfg.DebounceDelay.Std())
	assert.Equal(t, ".arbor/graph.json", cfg.SnapshotPath)
	assert.Equal(t, 1.0, cfg.Search.TextSimilarity)

	def := Default()
	assert.Equal(t, def.MaxRetries, cfg.MaxRetries)
	assert.Equal(t, def.Search.RecencyBoost, cfg.Search.RecencyBoost)
	assert.Equal(t, def.ExcludeDirs, cfg.ExcludeDirs)
}

func TestLoad_ZeroSizesRefilledButThresholdKept(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), `
batch_size: 0
memory_threshold: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Default().BatchSize, cfg.BatchSize)
	assert.Zero(t, cfg.MemoryThreshold, "explicit 0 disables the memory gate")
}

func TestLoad_BadDuration(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "debounce_delay: \"fast\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestLoad_NumericDurationRejected(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, t.TempDir(), "cache_ttl: 500\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.Error(t, err)
}

func TestDiscover_WalksUpToNearestFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	wrote := writeConfig(t, root, "batch_size: 7\n")

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, path, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, wrote, path)
	assert.Equal(t, 7, cfg.BatchSize)
}

func TestDiscover_PrefersClosestFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeConfig(t, root, "batch_size: 7\n")

	nested := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(nested, 0o755))
	inner := writeConfig(t, nested, "batch_size: 9\n")

	cfg, path, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, inner, path)
	assert.Equal(t, 9, cfg.BatchSize)
}

func TestDiscover_NoFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, path, err := Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
}

func TestPipelineOptions_CarriesSnapshotAndExcludes(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.SnapshotPath = "state.json"
	cfg.ExcludeDirs = []string{"generated"}

	opts := cfg.PipelineOptions()
	assert.Equal(t, "state.json", opts.SnapshotPath)
	assert.Equal(t, []string{"generated"}, opts.ExcludeDirs)
}
