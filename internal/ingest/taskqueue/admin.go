package taskqueue

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"thoth/internal/config"
)

// CheckBrokers dials every broker until one answers or timeout elapses.
func CheckBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to reach any broker within %s: last error: %v", timeout, lastErr)
}

// EnsureTopics creates each topic listed in configs if absent.
func EnsureTopics(ctx context.Context, brokers []string, configs []kafka.TopicConfig) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("get controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port))

	ctrlConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}
	defer ctrlConn.Close()

	for _, cfg := range configs {
		parts, err := ctrlConn.ReadPartitions(cfg.Topic)
		if err != nil {
			log.Warn().Err(err).Str("topic", cfg.Topic).Msg("read partitions failed, attempting create")
		}
		if len(parts) > 0 {
			log.Info().Str("topic", cfg.Topic).Msg("topic exists")
			continue
		}
		if err := ctrlConn.CreateTopics(cfg); err != nil {
			return fmt.Errorf("create topic %s: %w", cfg.Topic, err)
		}
		log.Info().Str("topic", cfg.Topic).Msg("created topic")
	}
	return nil
}

// EnsureQueueTopics waits for the configured brokers to answer, then
// provisions the batch topic if absent. A deployment with no brokers is a
// no-op.
func EnsureQueueTopics(ctx context.Context, cfg config.TaskQueueConfig) error {
	if len(cfg.Brokers) == 0 || cfg.CommandsTopic == "" {
		return nil
	}
	if err := CheckBrokers(ctx, cfg.Brokers, 10*time.Second); err != nil {
		return err
	}
	return EnsureTopics(ctx, cfg.Brokers, []kafka.TopicConfig{{
		Topic:             cfg.CommandsTopic,
		NumPartitions:     6,
		ReplicationFactor: 1,
	}})
}
