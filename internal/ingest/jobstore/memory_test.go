package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "docs", "docs_collection")
	require.NoError(t, err)
	require.Equal(t, StatusPending, job.Status)

	require.NoError(t, store.MarkRunning(ctx, job.JobID))
	got, err := store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, got.Status)

	require.NoError(t, store.MarkCompleted(ctx, job.JobID, Stats{TotalFiles: 3, ProcessedFiles: 3}))
	got, err = store.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.Equal(t, 3, got.Stats.TotalFiles)
}

func TestMemoryStoreSubJobsAggregate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job, err := store.CreateJob(ctx, "docs", "docs_collection")
	require.NoError(t, err)

	sj0, err := store.CreateSubJob(ctx, job.JobID, 0, 5)
	require.NoError(t, err)
	require.Equal(t, job.JobID+"_0000", sj0.SubJobID)

	sj1, err := store.CreateSubJob(ctx, job.JobID, 1, 5)
	require.NoError(t, err)

	require.NoError(t, store.MarkSubJobCompleted(ctx, sj0.SubJobID, Stats{TotalFiles: 5, ProcessedFiles: 5, TotalChunks: 10}))
	require.NoError(t, store.MarkSubJobFailed(ctx, sj1.SubJobID, "boom"))

	agg, err := store.GetJobWithSubJobs(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, agg.SubJobs, 2)
	require.Equal(t, 1, agg.SubJobCount.Completed)
	require.Equal(t, 1, agg.SubJobCount.Failed)
	require.Equal(t, 10, agg.Aggregated.TotalChunks)
}

func TestMemoryStoreListJobsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	j1, err := store.CreateJob(ctx, "docs", "c1")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	j2, err := store.CreateJob(ctx, "docs", "c1")
	require.NoError(t, err)
	_, err = store.CreateJob(ctx, "other", "c2")
	require.NoError(t, err)

	jobs, err := store.ListJobs(ctx, ListFilter{Source: "docs"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, j2.JobID, jobs[0].JobID)
	require.Equal(t, j1.JobID, jobs[1].JobID)
}

func TestStatsAddAndSubSaturate(t *testing.T) {
	s := Stats{TotalChunks: 2}
	s.SubFromChunks(5)
	require.Equal(t, 0, s.TotalChunks)

	s2 := Stats{TotalFiles: 1}
	s2.Add(Stats{TotalFiles: 2, TotalChunks: 4})
	require.Equal(t, 3, s2.TotalFiles)
	require.Equal(t, 4, s2.TotalChunks)
}

func TestMemoryStoreCleanupOldKeepsRunningJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old, err := store.CreateJob(ctx, "docs", "c1")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, old.JobID))
	require.NoError(t, store.MarkCompleted(ctx, old.JobID, Stats{ProcessedFiles: 1}))
	_, err = store.CreateSubJob(ctx, old.JobID, 0, 10)
	require.NoError(t, err)

	stuck, err := store.CreateJob(ctx, "docs", "c1")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(ctx, stuck.JobID))

	// Backdate both past the cutoff.
	store.mu.Lock()
	for _, j := range store.jobs {
		j.StartedAt = j.StartedAt.Add(-48 * time.Hour)
	}
	store.mu.Unlock()

	n, err := store.CleanupOld(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// The terminal job and its sub-jobs are gone; the running job stays.
	got, err := store.GetJob(ctx, old.JobID)
	require.NoError(t, err)
	require.Nil(t, got)
	sj, err := store.GetSubJob(ctx, subJobID(old.JobID, 0))
	require.NoError(t, err)
	require.Nil(t, sj)

	kept, err := store.GetJob(ctx, stuck.JobID)
	require.NoError(t, err)
	require.NotNil(t, kept)
}
