package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"thoth/internal/config"
	"thoth/internal/ingest/embedder"
	"thoth/internal/ingest/jobstore"
	"thoth/internal/ingest/snapshot"
	"thoth/internal/ingest/state"
	"thoth/internal/objectstore"
)

type commitSnapshot struct {
	fakeSnapshot
	commit  string
	changes snapshot.FileChanges
}

func (c *commitSnapshot) CurrentCommit(ctx context.Context, src config.SourceConfig) (string, error) {
	return c.commit, nil
}

func (c *commitSnapshot) FileChanges(ctx context.Context, src config.SourceConfig, sinceCommit string) (snapshot.FileChanges, error) {
	return c.changes, nil
}

func TestIngestAppliesIncrementalUpdateWhenCommitAdvanced(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()
	writeFile(t, clonePath, "new.md", "# New\n\nFresh content about a new onboarding step.\n")

	registry, err := config.NewRegistry(map[string]config.SourceConfig{
		"handbook": {
			Name:             "handbook",
			CollectionName:   "handbook",
			SupportedFormats: []string{".md"},
			LocalClonePath:   clonePath,
		},
	})
	require.NoError(t, err)

	stateStore := state.NewStore(objectstore.NewMemoryStore())
	prior := state.NewIngestionState("handbook")
	prior.LastCommit = "commit-1"
	require.NoError(t, stateStore.Save(ctx, prior))

	jobs := jobstore.NewMemoryStore()
	o := &Orchestrator{
		Registry: registry,
		JobStore: jobs,
		Queue:    noopQueue{},
		Snapshot: &commitSnapshot{
			commit:  "commit-2",
			changes: snapshot.FileChanges{Added: []string{"new.md"}},
		},
		Embedder:   embedder.NewDeterministic(8, 0),
		BaseURI:    t.TempDir(),
		StateStore: stateStore,
	}

	accepted, err := o.Ingest(ctx, "handbook", false)
	require.NoError(t, err)

	job := waitForJob(t, jobs, accepted.JobID, jobstore.StatusCompleted)
	require.Equal(t, 1, job.Stats.ProcessedFiles)
	require.Greater(t, job.Stats.TotalChunks, 0)

	updated, err := stateStore.Load(ctx, "handbook")
	require.NoError(t, err)
	require.Equal(t, "commit-2", updated.LastCommit)
	require.True(t, updated.ProcessedFiles["new.md"])
}

func TestIngestNoOpWhenCommitUnchanged(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()

	registry, err := config.NewRegistry(map[string]config.SourceConfig{
		"handbook": {Name: "handbook", CollectionName: "handbook", SupportedFormats: []string{".md"}, LocalClonePath: clonePath},
	})
	require.NoError(t, err)

	stateStore := state.NewStore(objectstore.NewMemoryStore())
	prior := state.NewIngestionState("handbook")
	prior.LastCommit = "commit-1"
	prior.TotalChunks = 7
	prior.TotalDocuments = 7
	require.NoError(t, stateStore.Save(ctx, prior))

	jobs := jobstore.NewMemoryStore()
	o := &Orchestrator{
		Registry:   registry,
		JobStore:   jobs,
		Queue:      noopQueue{},
		Snapshot:   &commitSnapshot{commit: "commit-1"},
		Embedder:   embedder.NewDeterministic(8, 0),
		BaseURI:    t.TempDir(),
		StateStore: stateStore,
	}

	accepted, err := o.Ingest(ctx, "handbook", false)
	require.NoError(t, err)

	job := waitForJob(t, jobs, accepted.JobID, jobstore.StatusCompleted)
	require.Equal(t, 7, job.Stats.TotalChunks)
	require.Equal(t, 0, job.Stats.ProcessedFiles)
}

func TestIngestForceSkipsIncrementalUpdate(t *testing.T) {
	ctx := context.Background()
	clonePath := t.TempDir()
	writeFile(t, clonePath, "intro.md", "# Intro\n\nHandbook content for the force-reingest test.\n")

	registry, err := config.NewRegistry(map[string]config.SourceConfig{
		"handbook": {Name: "handbook", CollectionName: "handbook", SupportedFormats: []string{".md"}, LocalClonePath: clonePath},
	})
	require.NoError(t, err)

	stateStore := state.NewStore(objectstore.NewMemoryStore())
	prior := state.NewIngestionState("handbook")
	prior.LastCommit = "commit-1"
	require.NoError(t, stateStore.Save(ctx, prior))

	jobs := jobstore.NewMemoryStore()
	o := &Orchestrator{
		Registry:   registry,
		JobStore:   jobs,
		Queue:      noopQueue{},
		Snapshot:   &commitSnapshot{commit: "commit-1", fakeSnapshot: fakeSnapshot{files: []string{"intro.md"}}},
		Embedder:   embedder.NewDeterministic(8, 0),
		BaseURI:    t.TempDir(),
		StateStore: stateStore,
	}

	accepted, err := o.Ingest(ctx, "handbook", true)
	require.NoError(t, err)

	job := waitForJob(t, jobs, accepted.JobID, jobstore.StatusCompleted)
	require.Equal(t, 1, job.Stats.ProcessedFiles)
}

