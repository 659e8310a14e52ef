package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"thoth/internal/config"
)

// BatchHandler processes one dispatched BatchTask, returning an error for
// transient failures that should be retried.
type BatchHandler func(ctx context.Context, task BatchTask) error

// StartKafkaConsumer reads BatchTasks from cfg.CommandsTopic and fans them
// out across a worker pool, committing each message only after handle
// succeeds or its retries are exhausted. Adapted from
// a fetch -> worker-pool -> retry-with-backoff -> commit loop over batch
// ingestion payloads. There is no DLQ republish: a task that exhausts its
// retries is logged and committed.
func StartKafkaConsumer(ctx context.Context, cfg config.TaskQueueConfig, handle BatchHandler) error {
	if len(cfg.Brokers) == 0 || cfg.CommandsTopic == "" {
		return errors.New("taskqueue: no brokers or commands topic configured")
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 4
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.CommandsTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka reader")
		}
	}()

	jobs := make(chan kafka.Message, workerCount*4)

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			defer wg.Done()
			for msg := range jobs {
				processWithRetry(ctx, handle, msg, workerID)
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("failed to commit batch task message")
				}
			}
		}(i)
	}

	go func() {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return
			}
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				log.Warn().Err(err).Msg("fetch batch task message failed")
				timer := time.NewTimer(500 * time.Millisecond)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return
				}
				continue
			}
			select {
			case jobs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return ctx.Err()
}

func processWithRetry(ctx context.Context, handle BatchHandler, msg kafka.Message, workerID int) {
	var task BatchTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		log.Error().Err(err).Int("worker", workerID).Msg("failed to decode batch task")
		return
	}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := handle(ctx, task); err != nil {
			if attempt == maxAttempts || ctx.Err() != nil {
				log.Error().Err(err).Str("batch_id", task.BatchID).Int("attempt", attempt).Msg("batch task failed, giving up")
				return
			}
			backoff := time.Duration(attempt) * 200 * time.Millisecond
			log.Warn().Err(err).Str("batch_id", task.BatchID).Int("attempt", attempt).Dur("backoff", backoff).Msg("batch task failed, retrying")
			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
			continue
		}
		return
	}
}
