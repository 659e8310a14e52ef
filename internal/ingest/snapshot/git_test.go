package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
)

func TestSaveAndLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	clonePath := filepath.Join(dir, "repo")
	require.NoError(t, os.MkdirAll(clonePath, 0o755))

	src := config.SourceConfig{Name: "docs", RepoURL: "https://example.invalid/docs.git", LocalClonePath: clonePath}
	require.NoError(t, SaveMetadata(src, "deadbeef"))

	commit, ok := LoadMetadata(src)
	require.True(t, ok)
	require.Equal(t, "deadbeef", commit)
}

func TestLoadMetadataMissing(t *testing.T) {
	dir := t.TempDir()
	src := config.SourceConfig{Name: "docs", LocalClonePath: filepath.Join(dir, "repo")}
	_, ok := LoadMetadata(src)
	require.False(t, ok)
}

func TestGitSnapshotProviderIsLocallySynced(t *testing.T) {
	dir := t.TempDir()
	clonePath := filepath.Join(dir, "repo")
	src := config.SourceConfig{Name: "docs", LocalClonePath: clonePath}

	g := NewGitSnapshotProvider()
	require.False(t, g.IsLocallySynced(src))

	require.NoError(t, os.WriteFile(filepath.Join(dir, syncMarkerFile), []byte("now"), 0o644))
	require.True(t, g.IsLocallySynced(src))
}

func TestLocalDiscoveryFiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("ignored"), 0o644))

	files, err := LocalDiscovery(dir, []string{".md"})
	require.NoError(t, err)
	require.Equal(t, []string{"a.md"}, files)
}
