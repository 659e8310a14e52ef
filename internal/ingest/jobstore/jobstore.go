// Package jobstore provides durable key-value storage of ingestion Jobs
// and their SubJobs, with a secondary index by (source, status,
// started_at desc) for listing.
package jobstore

import (
	"context"
	"fmt"
	"time"
)

// Status is a Job/SubJob lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is a final one.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stats is the five-counter bundle carried by both Job and SubJob
// document; all fields are saturating-nonnegative.
type Stats struct {
	TotalFiles      int `json:"total_files"`
	ProcessedFiles  int `json:"processed_files"`
	FailedFiles     int `json:"failed_files"`
	TotalChunks     int `json:"total_chunks"`
	TotalDocuments  int `json:"total_documents"`
}

// Add accumulates another Stats into the receiver, clamping every field
// at zero.
func (s *Stats) Add(o Stats) {
	s.TotalFiles = saturatingAdd(s.TotalFiles, o.TotalFiles)
	s.ProcessedFiles = saturatingAdd(s.ProcessedFiles, o.ProcessedFiles)
	s.FailedFiles = saturatingAdd(s.FailedFiles, o.FailedFiles)
	s.TotalChunks = saturatingAdd(s.TotalChunks, o.TotalChunks)
	s.TotalDocuments = saturatingAdd(s.TotalDocuments, o.TotalDocuments)
}

// SubFromChunks saturating-subtracts a chunk/document delta used by the
// incremental-update engine's delete phase.
func (s *Stats) SubFromChunks(deletedCount int) {
	s.TotalChunks = saturatingSub(s.TotalChunks, deletedCount)
	s.TotalDocuments = saturatingSub(s.TotalDocuments, deletedCount)
}

func saturatingAdd(a, b int) int {
	r := a + b
	if r < 0 {
		return 0
	}
	return r
}

func saturatingSub(a, b int) int {
	r := a - b
	if r < 0 {
		return 0
	}
	return r
}

// Job is the parent ingestion job.
type Job struct {
	JobID          string     `json:"job_id"`
	Status         Status     `json:"status"`
	Source         string     `json:"source"`
	CollectionName string     `json:"collection_name"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Stats          Stats      `json:"stats"`
	Error          string     `json:"error,omitempty"`
	TotalBatches   int        `json:"total_batches,omitempty"`
}

// SubJob is one batch's child job.
type SubJob struct {
	SubJobID    string     `json:"sub_job_id"`
	ParentJobID string     `json:"parent_job_id"`
	BatchIndex  int        `json:"batch_index"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       Stats      `json:"stats"`
	Error       string     `json:"error,omitempty"`
}

// SubJobCounts aggregates sub-job statuses for JobWithSubJobs.
type SubJobCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// JobWithSubJobs is the response shape of get_job_with_sub_jobs.
type JobWithSubJobs struct {
	Job         Job          `json:"job"`
	SubJobs     []SubJob     `json:"sub_jobs"`
	SubJobCount SubJobCounts `json:"sub_job_counts"`
	Aggregated  Stats        `json:"aggregated_stats"`
}

// ListFilter narrows list_jobs by optional source/status.
type ListFilter struct {
	Source string
	Status Status
	Limit  int
}

// JobStore is the persistence contract shared by every backend.
type JobStore interface {
	CreateJob(ctx context.Context, source, collectionName string) (Job, error)
	CreateSubJob(ctx context.Context, parentJobID string, batchIndex, totalFiles int) (SubJob, error)

	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetSubJob(ctx context.Context, subJobID string) (*SubJob, error)

	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, stats Stats) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	UpdateStats(ctx context.Context, jobID string, stats Stats) error
	SetTotalBatches(ctx context.Context, jobID string, total int) error

	MarkSubJobRunning(ctx context.Context, subJobID string) error
	MarkSubJobCompleted(ctx context.Context, subJobID string, stats Stats) error
	MarkSubJobFailed(ctx context.Context, subJobID string, errMsg string) error

	ListJobs(ctx context.Context, filter ListFilter) ([]Job, error)
	GetJobWithSubJobs(ctx context.Context, jobID string) (*JobWithSubJobs, error)

	CleanupOld(ctx context.Context, olderThan time.Duration) (int, error)
}

func subJobID(parentJobID string, batchIndex int) string {
	return fmt.Sprintf("%s_%04d", parentJobID, batchIndex)
}
