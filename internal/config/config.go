// Package config loads pipeline configuration from an optional config.yaml
// plus environment overrides. Required settings are validated at startup;
// a missing one is a fatal configuration error, not something to retry.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface for the pipeline binaries.
type Config struct {
	Service       ServiceConfig
	Log           LogConfig
	Database      DatabaseConfig
	Kafka         KafkaConfig
	Storage       StorageConfig
	Secrets       SecretsConfig
	Transcription TranscriptionConfig
	Analysis      AnalysisConfig
	Ingest        IngestConfig
}

// ServiceConfig identifies the process and its listen addresses.
type ServiceConfig struct {
	Name              string
	StagePort         string // worker stage-invocation HTTP port
	ObservabilityAddr string // /metrics, /healthz, /readyz
}

// LogConfig controls zerolog setup.
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig points at the record/profile store.
type DatabaseConfig struct {
	DSN string
}

// KafkaConfig covers the notification feed, pipeline starts and alerts.
type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	NotificationsTopic string
	NotificationsGroup string
	PipelineTopic      string
	AlertsTopic        string
}

// StorageConfig points at the S3-compatible object store holding audio.
type StorageConfig struct {
	Endpoint        string
	AccessKeySecret string // secret id resolved through the secret source
	SecretKeySecret string
	UseSSL          bool
}

// SecretsConfig names the credentials the stage clients fetch (and cache).
type SecretsConfig struct {
	TranscriptionKeyID string
	AnalysisKeyID      string
}

// TranscriptionConfig fixes the transcription provider call.
type TranscriptionConfig struct {
	BaseURL     string
	ModelID     string
	Language    string
	ContentType string
	Timeout     time.Duration
}

// AnalysisConfig fixes the analysis provider call.
type AnalysisConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// IngestConfig tunes the notification consumer.
type IngestConfig struct {
	CustomParamsHeader string
	BatchSize          int
	MaxParallel        int
}

// Load reads config.yaml (optional) and the environment. Environment keys
// are upper-snake forms of the config keys, e.g. DATABASE_DSN,
// KAFKA_BROKERS, TRANSCRIPTION_MODEL_ID.
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; env + defaults are enough on their own.
	_ = v.ReadInConfig()

	return &Config{
		Service: ServiceConfig{
			Name:              v.GetString("service.name"),
			StagePort:         v.GetString("service.stage_port"),
			ObservabilityAddr: v.GetString("service.observability_addr"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("database.dsn"),
		},
		Kafka: KafkaConfig{
			Enabled:            v.GetBool("kafka.enabled"),
			Brokers:            splitList(v.GetString("kafka.brokers")),
			NotificationsTopic: v.GetString("kafka.notifications_topic"),
			NotificationsGroup: v.GetString("kafka.notifications_group"),
			PipelineTopic:      v.GetString("kafka.pipeline_topic"),
			AlertsTopic:        v.GetString("kafka.alerts_topic"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeySecret: v.GetString("storage.access_key_secret"),
			SecretKeySecret: v.GetString("storage.secret_key_secret"),
			UseSSL:          v.GetBool("storage.use_ssl"),
		},
		Secrets: SecretsConfig{
			TranscriptionKeyID: v.GetString("secrets.transcription_key_id"),
			AnalysisKeyID:      v.GetString("secrets.analysis_key_id"),
		},
		Transcription: TranscriptionConfig{
			BaseURL:     v.GetString("transcription.base_url"),
			ModelID:     v.GetString("transcription.model_id"),
			Language:    v.GetString("transcription.language"),
			ContentType: v.GetString("transcription.content_type"),
			Timeout:     v.GetDuration("transcription.timeout"),
		},
		Analysis: AnalysisConfig{
			BaseURL: v.GetString("analysis.base_url"),
			Model:   v.GetString("analysis.model"),
			Timeout: v.GetDuration("analysis.timeout"),
		},
		Ingest: IngestConfig{
			CustomParamsHeader: v.GetString("ingest.custom_params_header"),
			BatchSize:          v.GetInt("ingest.batch_size"),
			MaxParallel:        v.GetInt("ingest.max_parallel"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "callinsight")
	v.SetDefault("service.stage_port", "8080")
	v.SetDefault("service.observability_addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.notifications_topic", "storage.notifications")
	v.SetDefault("kafka.notifications_group", "callinsight-ingestor")
	v.SetDefault("kafka.pipeline_topic", "callinsight.pipeline.start")
	v.SetDefault("kafka.alerts_topic", "callinsight.alerts")

	v.SetDefault("storage.access_key_secret", "STORAGE_ACCESS_KEY")
	v.SetDefault("storage.secret_key_secret", "STORAGE_SECRET_KEY")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("secrets.transcription_key_id", "TRANSCRIPTION_API_KEY")
	v.SetDefault("secrets.analysis_key_id", "ANALYSIS_API_KEY")

	v.SetDefault("transcription.base_url", "https://api.elevenlabs.io")
	v.SetDefault("transcription.model_id", "scribe_v1")
	v.SetDefault("transcription.language", "hin")
	v.SetDefault("transcription.content_type", "audio/aac")
	v.SetDefault("transcription.timeout", 3*time.Minute)

	v.SetDefault("analysis.base_url", "https://api.openai.com")
	v.SetDefault("analysis.model", "gpt-4o")
	v.SetDefault("analysis.timeout", time.Minute)

	v.SetDefault("ingest.custom_params_header", "x-amz-meta-additional-params")
	v.SetDefault("ingest.batch_size", 10)
	v.SetDefault("ingest.max_parallel", 4)
}

// ValidateWorker checks the settings the stage worker cannot run without.
func (c *Config) ValidateWorker() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	return missingError(missing)
}

// ValidateIngestor checks the settings the notification consumer cannot
// run without.
func (c *Config) ValidateIngestor() error {
	var missing []string
	if c.Database.DSN == "" {
		missing = append(missing, "database.dsn")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		missing = append(missing, "kafka.brokers")
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
