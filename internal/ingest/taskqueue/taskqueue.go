// Package taskqueue is an at-least-once dispatcher of batch ingestion
// tasks: a Kafka producer/consumer pair with an optional Redis dedupe
// guard and an OIDC-authenticated HTTP callback fallback.
package taskqueue

import (
	"context"
	"fmt"
)

// BatchTask is one enqueued batch: a half-open slice of a source's file
// list plus the identifiers a worker needs to process it.
type BatchTask struct {
	JobID          string   `json:"job_id"`
	BatchID        string   `json:"batch_id"`
	StartIndex     int      `json:"start_index"`
	EndIndex       int      `json:"end_index"`
	CollectionName string   `json:"collection_name"`
	Source         string   `json:"source"`
	FileList       []string `json:"file_list,omitempty"`
}

// TaskQueue is the dispatch contract the orchestrator fans out through.
type TaskQueue interface {
	// EnqueueBatch authenticates and dispatches a single task, returning a
	// queue-assigned handle or an error on failure.
	EnqueueBatch(ctx context.Context, task BatchTask) (handle string, err error)
	// EnqueueBatches splits fileList into batch_size-sized contiguous
	// ranges and enqueues one task per range.
	EnqueueBatches(ctx context.Context, jobID string, fileList []string, collectionName, source string, batchSize int) ([]BatchTask, error)
	// IsConfigured reports whether enough settings are present to enqueue
	// batches at all.
	IsConfigured() bool
}

func batchID(jobID string, index int) string {
	return fmt.Sprintf("%s_%04d", jobID, index)
}

// PlanBatches splits fileList into contiguous half-open ranges of at most
// batchSize files, without performing any I/O. Shared by every TaskQueue
// implementation so the slicing logic is tested once.
func PlanBatches(jobID string, fileList []string, collectionName, source string, batchSize int) []BatchTask {
	if batchSize <= 0 {
		batchSize = 1
	}
	n := len(fileList)
	numBatches := (n + batchSize - 1) / batchSize
	tasks := make([]BatchTask, 0, numBatches)
	for i := 0; i < numBatches; i++ {
		start := i * batchSize
		end := start + batchSize
		if end > n {
			end = n
		}
		tasks = append(tasks, BatchTask{
			JobID:          jobID,
			BatchID:        batchID(jobID, i),
			StartIndex:     start,
			EndIndex:       end,
			CollectionName: collectionName,
			Source:         source,
			FileList:       fileList[start:end],
		})
	}
	return tasks
}
