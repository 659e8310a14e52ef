package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"thoth/internal/ingest/errs"
)

// PostgresStore is the durable pgx.Pool-backed backend:
// one table per entity, QueryRow/Exec over the pool, ON CONFLICT upserts
// for idempotent status writes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-open pool. Call Init once at startup
// to create the schema.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the jobs/sub_jobs tables and their listing index.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ingestion_jobs (
    job_id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    source TEXT NOT NULL,
    collection_name TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    stats JSONB NOT NULL DEFAULT '{}',
    error TEXT NOT NULL DEFAULT '',
    total_batches INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS ingestion_jobs_list_idx
    ON ingestion_jobs(source, status, started_at DESC);

CREATE TABLE IF NOT EXISTS ingestion_sub_jobs (
    sub_job_id TEXT PRIMARY KEY,
    parent_job_id TEXT NOT NULL REFERENCES ingestion_jobs(job_id) ON DELETE CASCADE,
    batch_index INTEGER NOT NULL,
    status TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ,
    stats JSONB NOT NULL DEFAULT '{}',
    error TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS ingestion_sub_jobs_parent_idx
    ON ingestion_sub_jobs(parent_job_id, batch_index);
`)
	return err
}

func (s *PostgresStore) CreateJob(ctx context.Context, source, collectionName string) (Job, error) {
	j := Job{
		JobID:          uuid.NewString(),
		Status:         StatusPending,
		Source:         source,
		CollectionName: collectionName,
		StartedAt:      time.Now().UTC(),
	}
	statsJSON, _ := json.Marshal(j.Stats)
	_, err := s.pool.Exec(ctx, `
INSERT INTO ingestion_jobs (job_id, status, source, collection_name, started_at, stats)
VALUES ($1, $2, $3, $4, $5, $6)`,
		j.JobID, j.Status, j.Source, j.CollectionName, j.StartedAt, statsJSON)
	if err != nil {
		return Job{}, errs.New(errs.JobStoreError, "create job", err)
	}
	return j, nil
}

func (s *PostgresStore) CreateSubJob(ctx context.Context, parentJobID string, batchIndex, totalFiles int) (SubJob, error) {
	sj := SubJob{
		SubJobID:    subJobID(parentJobID, batchIndex),
		ParentJobID: parentJobID,
		BatchIndex:  batchIndex,
		Status:      StatusPending,
		StartedAt:   time.Now().UTC(),
		Stats:       Stats{TotalFiles: totalFiles},
	}
	statsJSON, _ := json.Marshal(sj.Stats)
	_, err := s.pool.Exec(ctx, `
INSERT INTO ingestion_sub_jobs (sub_job_id, parent_job_id, batch_index, status, started_at, stats)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sub_job_id) DO NOTHING`,
		sj.SubJobID, sj.ParentJobID, sj.BatchIndex, sj.Status, sj.StartedAt, statsJSON)
	if err != nil {
		return SubJob{}, errs.New(errs.JobStoreError, "create sub-job", err)
	}
	return sj, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT job_id, status, source, collection_name, started_at, completed_at, stats, error, total_batches
FROM ingestion_jobs WHERE job_id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.JobStoreError, "get job", err)
	}
	return j, nil
}

func (s *PostgresStore) GetSubJob(ctx context.Context, subJobID string) (*SubJob, error) {
	row := s.pool.QueryRow(ctx, `
SELECT sub_job_id, parent_job_id, batch_index, status, started_at, completed_at, stats, error
FROM ingestion_sub_jobs WHERE sub_job_id = $1`, subJobID)
	sj, err := scanSubJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.JobStoreError, "get sub-job", err)
	}
	return sj, nil
}

func (s *PostgresStore) MarkRunning(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_jobs SET status = $1 WHERE job_id = $2 AND status = $3`,
		StatusRunning, jobID, StatusPending)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark job running", err)
	}
	return nil
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, jobID string, stats Stats) error {
	statsJSON, _ := json.Marshal(stats)
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_jobs
SET status = $1, stats = $2,
    completed_at = COALESCE(completed_at, NOW())
WHERE job_id = $3`,
		StatusCompleted, statsJSON, jobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark job completed", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_jobs
SET status = $1, error = $2,
    completed_at = COALESCE(completed_at, NOW())
WHERE job_id = $3`,
		StatusFailed, errMsg, jobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark job failed", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStats(ctx context.Context, jobID string, stats Stats) error {
	statsJSON, _ := json.Marshal(stats)
	_, err := s.pool.Exec(ctx, `UPDATE ingestion_jobs SET stats = $1 WHERE job_id = $2`, statsJSON, jobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "update job stats", err)
	}
	return nil
}

func (s *PostgresStore) SetTotalBatches(ctx context.Context, jobID string, total int) error {
	_, err := s.pool.Exec(ctx, `UPDATE ingestion_jobs SET total_batches = $1 WHERE job_id = $2`, total, jobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "set total batches", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubJobRunning(ctx context.Context, subJobID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_sub_jobs SET status = $1 WHERE sub_job_id = $2 AND status = $3`,
		StatusRunning, subJobID, StatusPending)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark sub-job running", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubJobCompleted(ctx context.Context, subJobID string, stats Stats) error {
	statsJSON, _ := json.Marshal(stats)
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_sub_jobs
SET status = $1, stats = $2, completed_at = COALESCE(completed_at, NOW())
WHERE sub_job_id = $3`,
		StatusCompleted, statsJSON, subJobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark sub-job completed", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubJobFailed(ctx context.Context, subJobID string, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingestion_sub_jobs
SET status = $1, error = $2, completed_at = COALESCE(completed_at, NOW())
WHERE sub_job_id = $3`,
		StatusFailed, errMsg, subJobID)
	if err != nil {
		return errs.New(errs.JobStoreError, "mark sub-job failed", err)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter ListFilter) ([]Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT job_id, status, source, collection_name, started_at, completed_at, stats, error, total_batches
FROM ingestion_jobs
WHERE ($1 = '' OR source = $1) AND ($2 = '' OR status = $2)
ORDER BY started_at DESC
LIMIT $3`, filter.Source, string(filter.Status), limit)
	if err != nil {
		return nil, errs.New(errs.JobStoreError, "list jobs", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, errs.New(errs.JobStoreError, "scan job row", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.JobStoreError, "list jobs", err)
	}
	return out, nil
}

func (s *PostgresStore) GetJobWithSubJobs(ctx context.Context, jobID string) (*JobWithSubJobs, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT sub_job_id, parent_job_id, batch_index, status, started_at, completed_at, stats, error
FROM ingestion_sub_jobs WHERE parent_job_id = $1 ORDER BY batch_index ASC`, jobID)
	if err != nil {
		return nil, errs.New(errs.JobStoreError, "list sub-jobs", err)
	}
	defer rows.Close()

	var subs []SubJob
	var counts SubJobCounts
	var agg Stats
	for rows.Next() {
		sj, err := scanSubJobRow(rows)
		if err != nil {
			return nil, errs.New(errs.JobStoreError, "scan sub-job row", err)
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
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.JobStoreError, "list sub-jobs", err)
	}
	return &JobWithSubJobs{Job: *job, SubJobs: subs, SubJobCount: counts, Aggregated: agg}, nil
}

func (s *PostgresStore) CleanupOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM ingestion_jobs WHERE started_at < $1 AND status IN ('completed', 'failed')`, cutoff)
	if err != nil {
		return 0, errs.New(errs.JobStoreError, "cleanup old jobs", err)
	}
	return int(tag.RowsAffected()), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var statsJSON []byte
	if err := row.Scan(&j.JobID, &j.Status, &j.Source, &j.CollectionName, &j.StartedAt, &j.CompletedAt, &statsJSON, &j.Error, &j.TotalBatches); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(statsJSON, &j.Stats)
	return &j, nil
}

func scanJobRow(rows pgx.Rows) (*Job, error) {
	return scanJob(rows)
}

func scanSubJob(row rowScanner) (*SubJob, error) {
	var sj SubJob
	var statsJSON []byte
	if err := row.Scan(&sj.SubJobID, &sj.ParentJobID, &sj.BatchIndex, &sj.Status, &sj.StartedAt, &sj.CompletedAt, &statsJSON, &sj.Error); err != nil {
		return nil, err
	}
	_ = json.Unmarshal(statsJSON, &sj.Stats)
	return &sj, nil
}

func scanSubJobRow(rows pgx.Rows) (*SubJob, error) {
	return scanSubJob(rows)
}

var _ JobStore = (*PostgresStore)(nil)
