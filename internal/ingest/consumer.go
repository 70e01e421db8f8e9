package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"callinsight/internal/observability/logging"
)

// ConsumerConfig holds the notification feed settings.
type ConsumerConfig struct {
	Brokers   []string
	Topic     string
	GroupID   string
	BatchSize int
}

// Consumer reads storage notifications from Kafka and feeds them to the
// trigger in batches. A failed batch is retried in place with backoff
// until it succeeds or the context ends, and its offsets are committed
// only after success, so the committed watermark never moves past an
// unprocessed message. The trigger's content-derived ids make the
// replays safe: items that already created their record are skipped.
type Consumer struct {
	reader  *kafka.Reader
	trigger *Trigger
	batch   int
}

// NewConsumer creates a consumer over the notifications topic.
func NewConsumer(cfg ConsumerConfig, trigger *Trigger) *Consumer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0, // explicit commits only
	})
	return &Consumer{
		reader:  reader,
		trigger: trigger,
		batch:   cfg.BatchSize,
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	logger := logging.WithComponent("ingest")
	logger.Info().
		Str("topic", c.reader.Config().Topic).
		Str("group", c.reader.Config().GroupID).
		Msg("Notification consumer started")

	for {
		msgs, err := c.fetchBatch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				logger.Info().Msg("Notification consumer stopping")
				return nil
			}
			return err
		}
		if len(msgs) == 0 {
			continue
		}

		batch := make([]Notification, 0, len(msgs))
		for _, m := range msgs {
			batch = append(batch, fromMessage(m))
		}

		if err := c.processWithRetry(ctx, batch); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to commit offsets")
		}
	}
}

// processWithRetry runs one batch through the trigger, retrying with
// exponential backoff until it succeeds or the context ends. The reader
// has already advanced past the batch in memory, so skipping it here
// would let a later commit strand the failed messages; retrying in place
// is the only way to hold the committed offset back.
func (c *Consumer) processWithRetry(ctx context.Context, batch []Notification) error {
	logger := logging.WithComponent("ingest")

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until the context ends

	operation := func() error {
		err := c.trigger.ProcessBatch(ctx, batch)
		if err != nil {
			logger.Error().Err(err).Int("batch", len(batch)).Msg("Batch failed, retrying before commit")
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}

// fetchBatch blocks for the first message, then drains up to the batch
// size without waiting for more.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	msgs := []kafka.Message{first}

	for len(msgs) < c.batch {
		drainCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		m, err := c.reader.FetchMessage(drainCtx)
		cancel()
		if err != nil {
			break
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// fromMessage converts one Kafka message into a notification, mapping
// message headers onto attributes.
func fromMessage(m kafka.Message) Notification {
	var attrs map[string]string
	if len(m.Headers) > 0 {
		attrs = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			attrs[h.Key] = string(h.Value)
		}
	}
	return Notification{
		ID:         fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset),
		Body:       m.Value,
		Attributes: attrs,
	}
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
