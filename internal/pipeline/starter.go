// Package pipeline hands newly created calls to the external workflow
// orchestrator by publishing pipeline-start messages.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"callinsight/internal/models"
	"callinsight/internal/observability/metrics"
)

// Starter begins one pipeline instance for a created record.
type Starter interface {
	Start(ctx context.Context, input models.StageRequest) error
}

// KafkaStarter publishes pipeline-start messages to the topic the
// orchestrator consumes.
type KafkaStarter struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// Config holds pipeline starter configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// New creates a Kafka pipeline starter. With Kafka disabled or no brokers
// configured it falls back to log-only mode.
func New(cfg *Config) *KafkaStarter {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Pipeline starter in log-only mode")
		s := &KafkaStarter{enabled: false, metrics: m}
		if cfg != nil {
			s.topic = cfg.Topic
		}
		return s
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Pipeline starter initialized")

	return &KafkaStarter{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		metrics: m,
	}
}

// Start publishes one pipeline-start message keyed by call id.
func (s *KafkaStarter) Start(ctx context.Context, input models.StageRequest) error {
	start := time.Now()

	payload, err := json.Marshal(input)
	if err != nil {
		log.Error().Err(err).Str("callId", input.CallID).Msg("Failed to marshal pipeline start")
		return err
	}

	log.Info().
		Str("callId", input.CallID).
		Str("bucket", input.Bucket).
		Str("key", input.Key).
		Msg("Starting pipeline instance")

	if !s.enabled || s.writer == nil {
		s.metrics.RecordPublish(s.topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(input.CallID),
		Value: payload,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", s.topic).
			Str("callId", input.CallID).
			Msg("Failed to publish pipeline start")
		s.metrics.RecordPublish(s.topic, err, time.Since(start).Seconds())
		return err
	}

	s.metrics.RecordPublish(s.topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the underlying writer.
func (s *KafkaStarter) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}
