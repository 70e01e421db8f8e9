// Package alerts dispatches operator notifications for critical terminal
// failures. Delivery is best effort: callers log and swallow errors so an
// alert problem can never fail the status write that triggered it.
package alerts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"callinsight/internal/observability/metrics"
)

// Notifier publishes one operator notification.
type Notifier interface {
	Publish(ctx context.Context, subject, message string) error
}

// KafkaNotifier publishes alerts to a Kafka topic.
type KafkaNotifier struct {
	writer  *kafka.Writer
	topic   string
	enabled bool
	metrics *metrics.Metrics
}

// Config holds alert publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// alertEvent is the wire shape of one alert.
type alertEvent struct {
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// New creates a Kafka alert notifier. With Kafka disabled or no brokers
// configured it falls back to log-only mode.
func New(cfg *Config) *KafkaNotifier {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Alert notifier in log-only mode")
		n := &KafkaNotifier{enabled: false, metrics: m}
		if cfg != nil {
			n.topic = cfg.Topic
		}
		return n
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
		Msg("Alert notifier initialized")

	return &KafkaNotifier{
		writer:  writer,
		topic:   cfg.Topic,
		enabled: true,
		metrics: m,
	}
}

// Publish sends one alert to the alerts topic.
func (n *KafkaNotifier) Publish(ctx context.Context, subject, message string) error {
	start := time.Now()

	payload, err := json.Marshal(alertEvent{
		Subject:   subject,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	log.Warn().
		Str("subject", subject).
		RawJSON("alert", payload).
		Msg("Dispatching alert")

	if !n.enabled || n.writer == nil {
		n.metrics.RecordPublish(n.topic, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(subject),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().Err(err).Str("topic", n.topic).Msg("Failed to publish alert")
		n.metrics.RecordPublish(n.topic, err, time.Since(start).Seconds())
		return err
	}

	n.metrics.RecordPublish(n.topic, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	if n.writer != nil {
		return n.writer.Close()
	}
	return nil
}
