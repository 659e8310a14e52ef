// Package snapshot abstracts over a source's on-disk
// Git working copy that enumerates files and computes the diff between two
// commits, built on go-git with a .gitignore-aware working-tree walk.
package snapshot

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
)

// FileChanges is the three-way diff between two repository snapshots.
type FileChanges struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Provider is the snapshot contract consumed by the Orchestrator and
// BatchWorker.
type Provider interface {
	// ListFiles enumerates the source's files whose extension is in
	// SupportedFormats, in any consistent order. GitSnapshotProvider walks
	// the whole working tree at LocalClonePath; it does not restrict the
	// walk to the source's object_prefix.
	ListFiles(ctx context.Context, src config.SourceConfig) ([]string, error)
	// FileChanges computes the added/modified/deleted sets between
	// sinceCommit and the current commit.
	FileChanges(ctx context.Context, src config.SourceConfig, sinceCommit string) (FileChanges, error)
	// CurrentCommit reports the source's current commit, or "" if unknown.
	CurrentCommit(ctx context.Context, src config.SourceConfig) (string, error)
	// SyncLocally is an optional prefetch hook; no-op when unsupported.
	SyncLocally(ctx context.Context, src config.SourceConfig) error
	// IsLocallySynced reports whether SyncLocally has succeeded at least
	// once for src.
	IsLocallySynced(src config.SourceConfig) bool
}

// filterSupported drops any path whose extension is not in formats.
func filterSupported(paths []string, formats []string) []string {
	set := make(map[string]bool, len(formats))
	for _, f := range formats {
		set[strings.ToLower(f)] = true
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if set[strings.ToLower(filepath.Ext(p))] {
			out = append(out, p)
		}
	}
	return out
}

func (fc FileChanges) filterSupported(formats []string) FileChanges {
	return FileChanges{
		Added:    filterSupported(fc.Added, formats),
		Modified: filterSupported(fc.Modified, formats),
		Deleted:  filterSupported(fc.Deleted, formats),
	}
}

// LocalDiscovery walks a plain local directory (no Git involved), used by
// the Orchestrator as a fallback when no snapshot provider is configured
// or the provider's ListFiles fails for a source.
func LocalDiscovery(root string, formats []string) ([]string, error) {
	var out []string
	err := walkDir(root, func(relPath string) {
		out = append(out, relPath)
	})
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "local discovery of "+root, err)
	}
	sort.Strings(out)
	return filterSupported(out, formats), nil
}
