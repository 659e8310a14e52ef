package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, defaultBatchSize, cfg.BatchSize)
	require.Equal(t, defaultWorkerCount, cfg.TaskQueue.WorkerCount)
	require.Equal(t, "0.0.0.0", cfg.Host)
	require.Equal(t, 8085, cfg.Port)
	require.Equal(t, 256, cfg.Embedding.Dimension)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: "127.0.0.1"
port: 9090
storage:
  base_uri: "/tmp/thoth-store"
sources:
  handbook:
    collection_name: handbook
    object_prefix: handbook/
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "/tmp/thoth-store", cfg.Storage.BaseURI)
	src, ok := cfg.Sources["handbook"]
	require.True(t, ok)
	require.Equal(t, "handbook", src.Name)
	require.NotEmpty(t, src.SupportedFormats)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnvOverridesSourcePrefix(t *testing.T) {
	cfg := &Config{Sources: map[string]SourceConfig{
		"handbook": {Name: "handbook", CollectionName: "handbook", ObjectPrefix: "old/"},
	}}
	t.Setenv("THOTH_SOURCE_HANDBOOK_OBJECT_PREFIX", "new/")
	t.Setenv("THOTH_SOURCE_HANDBOOK_COLLECTION", "handbook-v2")
	applyEnvOverrides(cfg)

	src := cfg.Sources["handbook"]
	require.Equal(t, "new/", src.ObjectPrefix)
	require.Equal(t, "handbook-v2", src.CollectionName)
}

func TestNewRegistryRejectsDuplicateCollectionNames(t *testing.T) {
	_, err := NewRegistry(map[string]SourceConfig{
		"a": {Name: "a", CollectionName: "shared", ObjectPrefix: "a/"},
		"b": {Name: "b", CollectionName: "shared", ObjectPrefix: "b/"},
	})
	require.Error(t, err)
}

func TestNewRegistryRejectsDuplicateObjectPrefixes(t *testing.T) {
	_, err := NewRegistry(map[string]SourceConfig{
		"a": {Name: "a", CollectionName: "a-col", ObjectPrefix: "shared/"},
		"b": {Name: "b", CollectionName: "b-col", ObjectPrefix: "shared/"},
	})
	require.Error(t, err)
}

func TestRegistryByCollectionAndListNames(t *testing.T) {
	reg, err := NewRegistry(map[string]SourceConfig{
		"handbook": {Name: "handbook", CollectionName: "handbook-col", ObjectPrefix: "handbook/"},
	})
	require.NoError(t, err)

	src, ok := reg.ByCollection("handbook-col")
	require.True(t, ok)
	require.Equal(t, "handbook", src.Name)

	_, ok = reg.ByCollection("missing")
	require.False(t, ok)

	require.Equal(t, []string{"handbook"}, reg.ListNames())
}
