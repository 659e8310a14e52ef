package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/rs/zerolog/log"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
)

const syncMarkerFile = ".thoth-synced"
const metadataFile = "repo_metadata.json"

// repoMetadata is the JSON sidecar written next to a source's clone,
// recording the last synced commit for that repo_url.
type repoMetadata struct {
	CommitSHA string `json:"commit_sha"`
	ClonePath string `json:"clone_path"`
	RepoURL   string `json:"repo_url"`
}

// GitSnapshotProvider implements Provider over a Git working copy cloned
// to SourceConfig.LocalClonePath; clone state lives on disk under each
// source's LocalClonePath.
type GitSnapshotProvider struct{}

// NewGitSnapshotProvider constructs the process-wide git-backed provider.
func NewGitSnapshotProvider() *GitSnapshotProvider {
	return &GitSnapshotProvider{}
}

func (g *GitSnapshotProvider) openRepo(src config.SourceConfig) (*git.Repository, error) {
	if src.LocalClonePath == "" {
		return nil, errs.New(errs.ObjectStoreError, "source "+src.Name+" has no local_clone_path configured", nil)
	}
	repo, err := git.PlainOpen(src.LocalClonePath)
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "open git repository at "+src.LocalClonePath, err)
	}
	return repo, nil
}

// ListFiles walks the working tree honoring .gitignore, returning every
// path whose extension is in src.SupportedFormats.
func (g *GitSnapshotProvider) ListFiles(ctx context.Context, src config.SourceConfig) ([]string, error) {
	if src.LocalClonePath == "" {
		return nil, errs.New(errs.ObjectStoreError, "source "+src.Name+" has no local_clone_path configured", nil)
	}
	matcher := loadGitignore(src.LocalClonePath)
	var out []string
	err := walkDir(src.LocalClonePath, func(rel string) {
		if strings.HasPrefix(rel, ".git/") {
			return
		}
		if matcher != nil && matcher.Match(strings.Split(rel, "/"), false) {
			return
		}
		out = append(out, rel)
	})
	if err != nil {
		return nil, errs.New(errs.ObjectStoreError, "walk "+src.LocalClonePath, err)
	}
	return filterSupported(out, src.SupportedFormats), nil
}

func loadGitignore(root string) gitignore.Matcher {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, gitignore.ParsePattern(scanner.Text(), nil))
	}
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}

// CurrentCommit reports the repository's HEAD commit SHA.
func (g *GitSnapshotProvider) CurrentCommit(ctx context.Context, src config.SourceConfig) (string, error) {
	repo, err := g.openRepo(src)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", errs.New(errs.ObjectStoreError, "read HEAD of "+src.LocalClonePath, err)
	}
	return head.Hash().String(), nil
}

// FileChanges computes the three-way diff between sinceCommit and the
// current HEAD: renames as delete+add, copies as add-only,
// unknown change kinds default to modified.
func (g *GitSnapshotProvider) FileChanges(ctx context.Context, src config.SourceConfig, sinceCommit string) (FileChanges, error) {
	repo, err := g.openRepo(src)
	if err != nil {
		return FileChanges{}, err
	}
	fromCommit, err := repo.CommitObject(plumbing.NewHash(sinceCommit))
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "resolve commit "+sinceCommit, err)
	}
	head, err := repo.Head()
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "read HEAD", err)
	}
	toCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "resolve HEAD commit", err)
	}

	fromTree, err := fromCommit.Tree()
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "read tree at "+sinceCommit, err)
	}
	toTree, err := toCommit.Tree()
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "read tree at HEAD", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return FileChanges{}, errs.New(errs.ObjectStoreError, "diff trees", err)
	}

	fc := diffChangesToFileChanges(changes)
	return fc.filterSupported(src.SupportedFormats), nil
}

// diffChangesToFileChanges classifies each object.Change by action:
// inserts as added, deletes as deleted, renames split into delete+add,
// and anything unrecognized treated as modified.
func diffChangesToFileChanges(changes object.Changes) FileChanges {
	var fc FileChanges
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			fc.Modified = append(fc.Modified, changeName(c))
			continue
		}
		switch action {
		case merkletrie.Insert:
			fc.Added = append(fc.Added, c.To.Name)
		case merkletrie.Delete:
			fc.Deleted = append(fc.Deleted, c.From.Name)
		case merkletrie.Modify:
			fc.Modified = append(fc.Modified, c.To.Name)
		default:
			fc.Modified = append(fc.Modified, changeName(c))
		}
	}
	return fc
}

func changeName(c *object.Change) string {
	if c.To.Name != "" {
		return c.To.Name
	}
	return c.From.Name
}

// SyncLocally clones (if absent) or pulls (if present) the source's
// repository, then writes a marker file recording successful sync
// so IsLocallySynced can answer without touching the network.
func (g *GitSnapshotProvider) SyncLocally(ctx context.Context, src config.SourceConfig) error {
	if src.LocalClonePath == "" || src.RepoURL == "" {
		return errs.New(errs.ObjectStoreError, "source "+src.Name+" has no repo_url/local_clone_path configured", nil)
	}
	if _, err := os.Stat(src.LocalClonePath); os.IsNotExist(err) {
		log.Info().Str("source", src.Name).Str("repo_url", src.RepoURL).Msg("cloning source repository")
		if _, err := git.PlainCloneContext(ctx, src.LocalClonePath, false, &git.CloneOptions{URL: src.RepoURL}); err != nil {
			return errs.New(errs.ObjectStoreError, "clone "+src.RepoURL, err)
		}
	} else {
		repo, err := git.PlainOpen(src.LocalClonePath)
		if err != nil {
			return errs.New(errs.ObjectStoreError, "open "+src.LocalClonePath, err)
		}
		wt, err := repo.Worktree()
		if err != nil {
			return errs.New(errs.ObjectStoreError, "open worktree", err)
		}
		if err := wt.PullContext(ctx, &git.PullOptions{}); err != nil && err != git.NoErrAlreadyUpToDate {
			return errs.New(errs.ObjectStoreError, "pull "+src.RepoURL, err)
		}
	}
	return os.WriteFile(filepath.Join(filepath.Dir(src.LocalClonePath), syncMarkerFile), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}

// IsLocallySynced reports whether SyncLocally has written its marker file
// for src.
func (g *GitSnapshotProvider) IsLocallySynced(src config.SourceConfig) bool {
	if src.LocalClonePath == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(filepath.Dir(src.LocalClonePath), syncMarkerFile))
	return err == nil
}

// SaveMetadata persists the repo_metadata.json sidecar alongside
// ClonePath so a later process can resume from the recorded commit.
func SaveMetadata(src config.SourceConfig, commitSHA string) error {
	meta := repoMetadata{CommitSHA: commitSHA, ClonePath: src.LocalClonePath, RepoURL: src.RepoURL}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(filepath.Dir(src.LocalClonePath), metadataFile)
	return os.WriteFile(path, data, 0o644)
}

// LoadMetadata reads back the repo_metadata.json sidecar's commit SHA, or
// returns ("", false) if it is absent or unreadable.
func LoadMetadata(src config.SourceConfig) (commitSHA string, ok bool) {
	path := filepath.Join(filepath.Dir(src.LocalClonePath), metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	var meta repoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", false
	}
	return meta.CommitSHA, true
}

var _ Provider = (*GitSnapshotProvider)(nil)

// CloneSource seeds a source's local clone from its repo_url: clones if
// absent, returns a status string of "success"|"exists"|"error".
func CloneSource(ctx context.Context, src config.SourceConfig, force bool) (status string, commit string, err error) {
	if src.RepoURL == "" || src.LocalClonePath == "" {
		return "error", "", errs.New(errs.BadRequest, "source "+src.Name+" has no repo_url configured", nil)
	}
	g := NewGitSnapshotProvider()
	exists := false
	if _, statErr := os.Stat(src.LocalClonePath); statErr == nil {
		exists = true
	}
	if exists && !force {
		c, cerr := g.CurrentCommit(ctx, src)
		if cerr != nil {
			return "error", "", cerr
		}
		return "exists", c, nil
	}
	if exists && force {
		if rmErr := os.RemoveAll(src.LocalClonePath); rmErr != nil {
			return "error", "", errs.New(errs.ObjectStoreError, "remove existing clone", rmErr)
		}
	}
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if syncErr := g.SyncLocally(ctx, src); syncErr != nil {
			lastErr = syncErr
			log.Warn().Err(syncErr).Int("attempt", attempt).Str("source", src.Name).Msg("clone attempt failed")
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return "error", "", fmt.Errorf("clone %s after 3 attempts: %w", src.RepoURL, lastErr)
	}
	c, cerr := g.CurrentCommit(ctx, src)
	if cerr != nil {
		return "error", "", cerr
	}
	if err := SaveMetadata(src, c); err != nil {
		log.Warn().Err(err).Msg("save repo metadata")
	}
	return "success", c, nil
}
