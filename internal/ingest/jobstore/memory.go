package jobstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"thoth/internal/ingest/errs"
)

// MemoryStore is an in-process JobStore, used by tests and by the direct
// ingestion path when no Postgres DSN is configured.
type MemoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	subJobs map[string]*SubJob
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job), subJobs: make(map[string]*SubJob)}
}

func (m *MemoryStore) CreateJob(ctx context.Context, source, collectionName string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := Job{
		JobID:          uuid.NewString(),
		Status:         StatusPending,
		Source:         source,
		CollectionName: collectionName,
		StartedAt:      time.Now().UTC(),
	}
	m.jobs[j.JobID] = &j
	cp := j
	return cp, nil
}

func (m *MemoryStore) CreateSubJob(ctx context.Context, parentJobID string, batchIndex, totalFiles int) (SubJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sj := SubJob{
		SubJobID:    subJobID(parentJobID, batchIndex),
		ParentJobID: parentJobID,
		BatchIndex:  batchIndex,
		Status:      StatusPending,
		StartedAt:   time.Now().UTC(),
		Stats:       Stats{TotalFiles: totalFiles},
	}
	m.subJobs[sj.SubJobID] = &sj
	cp := sj
	return cp, nil
}

func (m *MemoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *MemoryStore) GetSubJob(ctx context.Context, subJobID string) (*SubJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sj, ok := m.subJobs[subJobID]
	if !ok {
		return nil, nil
	}
	cp := *sj
	return &cp, nil
}

func (m *MemoryStore) MarkRunning(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errs.New(errs.JobStoreError, "job not found: "+jobID, nil)
	}
	if j.Status == StatusPending {
		j.Status = StatusRunning
	}
	return nil
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, jobID string, stats Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errs.New(errs.JobStoreError, "job not found: "+jobID, nil)
	}
	j.Stats = stats
	if j.Status != StatusCompleted && j.Status != StatusFailed {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	j.Status = StatusCompleted
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errs.New(errs.JobStoreError, "job not found: "+jobID, nil)
	}
	j.Error = errMsg
	if j.Status != StatusCompleted && j.Status != StatusFailed {
		now := time.Now().UTC()
		j.CompletedAt = &now
	}
	j.Status = StatusFailed
	return nil
}

func (m *MemoryStore) UpdateStats(ctx context.Context, jobID string, stats Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errs.New(errs.JobStoreError, "job not found: "+jobID, nil)
	}
	j.Stats = stats
	return nil
}

func (m *MemoryStore) SetTotalBatches(ctx context.Context, jobID string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return errs.New(errs.JobStoreError, "job not found: "+jobID, nil)
	}
	j.TotalBatches = total
	return nil
}

func (m *MemoryStore) MarkSubJobRunning(ctx context.Context, subJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sj, ok := m.subJobs[subJobID]
	if !ok {
		return errs.New(errs.JobStoreError, "sub-job not found: "+subJobID, nil)
	}
	if sj.Status == StatusPending {
		sj.Status = StatusRunning
	}
	return nil
}

func (m *MemoryStore) MarkSubJobCompleted(ctx context.Context, subJobID string, stats Stats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sj, ok := m.subJobs[subJobID]
	if !ok {
		return errs.New(errs.JobStoreError, "sub-job not found: "+subJobID, nil)
	}
	sj.Stats = stats
	if sj.Status != StatusCompleted && sj.Status != StatusFailed {
		now := time.Now().UTC()
		sj.CompletedAt = &now
	}
	sj.Status = StatusCompleted
	return nil
}

func (m *MemoryStore) MarkSubJobFailed(ctx context.Context, subJobID string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sj, ok := m.subJobs[subJobID]
	if !ok {
		return errs.New(errs.JobStoreError, "sub-job not found: "+subJobID, nil)
	}
	sj.Error = errMsg
	if sj.Status != StatusCompleted && sj.Status != StatusFailed {
		now := time.Now().UTC()
		sj.CompletedAt = &now
	}
	sj.Status = StatusFailed
	return nil
}

func (m *MemoryStore) ListJobs(ctx context.Context, filter ListFilter) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if filter.Source != "" && j.Source != filter.Source {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) GetJobWithSubJobs(ctx context.Context, jobID string) (*JobWithSubJobs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	var subs []SubJob
	var counts SubJobCounts
	var agg Stats
	for _, sj := range m.subJobs {
		if sj.ParentJobID != jobID {
			continue
		}
		subs = append(subs, *sj)
		agg.Add(sj.Stats)
		switch sj.Status {
		case StatusPending:
			counts.Pending++
		case StatusRunning:
			counts.Running++
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		}
	}
	sort.Slice(subs, func(i, k int) bool { return subs[i].BatchIndex < subs[k].BatchIndex })
	return &JobWithSubJobs{Job: *j, SubJobs: subs, SubJobCount: counts, Aggregated: agg}, nil
}

func (m *MemoryStore) CleanupOld(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	n := 0
	for id, j := range m.jobs {
		// Only terminal jobs age out; a stuck running job stays visible
		// for an operator to inspect.
		if j.Status.Terminal() && j.StartedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	for id, sj := range m.subJobs {
		if _, ok := m.jobs[sj.ParentJobID]; !ok {
			delete(m.subJobs, id)
		}
	}
	return n, nil
}

var _ JobStore = (*MemoryStore)(nil)
