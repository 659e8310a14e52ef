package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"thoth/internal/config"
	"thoth/internal/ingest/errs"
	"thoth/internal/observability"
)

// KafkaQueue dispatches batch tasks over Kafka and authenticates the
// side-channel HTTP call to the batch worker with a minted OIDC token.
type KafkaQueue struct {
	cfg        config.TaskQueueConfig
	writer     *kafka.Writer
	minter     TokenMinter
	httpClient *http.Client
	dedupe     DedupeStore
}

// DedupeStore is the redelivery-guard contract: a fast-path skip for
// tasks this process has already seen. Correctness does not depend on it;
// the worker's isolated-URI probe is the real idempotency guard.
type DedupeStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// NewKafkaQueue constructs a KafkaQueue. dedupe may be nil, in which case
// redelivery guarding is skipped (not recommended in production).
func NewKafkaQueue(cfg config.TaskQueueConfig, minter TokenMinter, dedupe DedupeStore) *KafkaQueue {
	var writer *kafka.Writer
	if len(cfg.Brokers) > 0 && cfg.CommandsTopic != "" {
		writer = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.CommandsTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return &KafkaQueue{
		cfg:        cfg,
		writer:     writer,
		minter:     minter,
		httpClient: observability.NewHTTPClient(nil),
		dedupe:     dedupe,
	}
}

func (q *KafkaQueue) IsConfigured() bool {
	return q.cfg.IsConfigured()
}

// EnqueueBatch publishes task to Kafka when a writer is configured;
// otherwise it falls back to a direct, OIDC-authenticated HTTP POST to
// BatchWorkerURL (the callback-style deployment).
func (q *KafkaQueue) EnqueueBatch(ctx context.Context, task BatchTask) (string, error) {
	if !q.IsConfigured() {
		return "", errs.New(errs.QueueError, "task queue is not configured", nil)
	}
	if q.dedupe != nil {
		if existing, err := q.dedupe.Get(ctx, task.BatchID); err == nil && existing != "" {
			log.Info().Str("batch_id", task.BatchID).Msg("batch already enqueued, skipping duplicate")
			return existing, nil
		}
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return "", errs.New(errs.QueueError, "marshal batch task", err)
	}

	if q.writer != nil {
		if err := q.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.BatchID), Value: payload}); err != nil {
			return "", errs.New(errs.QueueError, "publish batch task to kafka", err)
		}
	} else if q.cfg.BatchWorkerURL != "" {
		if err := q.postToBatchWorker(ctx, payload); err != nil {
			return "", err
		}
	} else {
		return "", errs.New(errs.QueueError, "no kafka writer or batch worker URL configured", nil)
	}

	if q.dedupe != nil {
		ttl := time.Duration(q.cfg.DedupeTTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		if err := q.dedupe.Set(ctx, task.BatchID, task.BatchID, ttl); err != nil {
			log.Warn().Err(err).Str("batch_id", task.BatchID).Msg("failed to record dedupe marker")
		}
	}
	return task.BatchID, nil
}

func (q *KafkaQueue) postToBatchWorker(ctx context.Context, payload []byte) error {
	audience, err := AudienceFor(q.cfg.BatchWorkerURL)
	if err != nil {
		return errs.New(errs.QueueError, "derive OIDC audience", err)
	}
	var bearer string
	if q.minter != nil {
		bearer, err = q.minter.Mint(ctx, audience)
		if err != nil {
			return errs.New(errs.QueueError, "mint OIDC token", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.cfg.BatchWorkerURL, bytes.NewReader(payload))
	if err != nil {
		return errs.New(errs.QueueError, "build batch worker request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return errs.New(errs.QueueError, "call batch worker endpoint", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errs.New(errs.QueueError, fmt.Sprintf("batch worker endpoint returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// EnqueueBatches splits fileList and enqueues one task per range,
// continuing past individual failures and returning the tasks that were
// successfully dispatched.
func (q *KafkaQueue) EnqueueBatches(ctx context.Context, jobID string, fileList []string, collectionName, source string, batchSize int) ([]BatchTask, error) {
	tasks := PlanBatches(jobID, fileList, collectionName, source, batchSize)
	dispatched := make([]BatchTask, 0, len(tasks))
	for _, t := range tasks {
		if _, err := q.EnqueueBatch(ctx, t); err != nil {
			log.Error().Err(err).Str("batch_id", t.BatchID).Msg("failed to enqueue batch")
			continue
		}
		dispatched = append(dispatched, t)
	}
	return dispatched, nil
}

// Close releases the underlying Kafka writer, if any.
func (q *KafkaQueue) Close() error {
	if q.writer != nil {
		return q.writer.Close()
	}
	return nil
}

var _ TaskQueue = (*KafkaQueue)(nil)
