package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t,
		"SERVICE_NAME", "SERVICE_STAGE_PORT", "LOG_LEVEL",
		"KAFKA_BROKERS", "KAFKA_NOTIFICATIONS_TOPIC",
		"TRANSCRIPTION_MODEL_ID", "TRANSCRIPTION_LANGUAGE", "TRANSCRIPTION_TIMEOUT",
		"ANALYSIS_MODEL", "INGEST_CUSTOM_PARAMS_HEADER", "INGEST_BATCH_SIZE",
	)

	cfg := Load()

	if cfg.Service.Name != "callinsight" {
		t.Errorf("expected default service name 'callinsight', got %s", cfg.Service.Name)
	}
	if cfg.Service.StagePort != "8080" {
		t.Errorf("expected default stage port '8080', got %s", cfg.Service.StagePort)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Kafka.NotificationsTopic != "storage.notifications" {
		t.Errorf("expected default notifications topic, got %s", cfg.Kafka.NotificationsTopic)
	}
	if cfg.Transcription.ModelID != "scribe_v1" {
		t.Errorf("expected default transcription model 'scribe_v1', got %s", cfg.Transcription.ModelID)
	}
	if cfg.Transcription.ContentType != "audio/aac" {
		t.Errorf("expected default content type 'audio/aac', got %s", cfg.Transcription.ContentType)
	}
	if cfg.Transcription.Timeout != 3*time.Minute {
		t.Errorf("expected default transcription timeout 3m, got %v", cfg.Transcription.Timeout)
	}
	if cfg.Analysis.Model != "gpt-4o" {
		t.Errorf("expected default analysis model 'gpt-4o', got %s", cfg.Analysis.Model)
	}
	if cfg.Ingest.CustomParamsHeader != "x-amz-meta-additional-params" {
		t.Errorf("expected default custom params header, got %s", cfg.Ingest.CustomParamsHeader)
	}
	if cfg.Ingest.BatchSize != 10 {
		t.Errorf("expected default batch size 10, got %d", cfg.Ingest.BatchSize)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("SERVICE_STAGE_PORT", "9999")
	os.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	os.Setenv("ANALYSIS_MODEL", "gpt-4o-mini")
	os.Setenv("TRANSCRIPTION_LANGUAGE", "eng")
	defer clearEnv(t, "SERVICE_STAGE_PORT", "KAFKA_BROKERS", "ANALYSIS_MODEL", "TRANSCRIPTION_LANGUAGE")

	cfg := Load()

	if cfg.Service.StagePort != "9999" {
		t.Errorf("expected stage port '9999', got %s", cfg.Service.StagePort)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Analysis.Model != "gpt-4o-mini" {
		t.Errorf("expected analysis model override, got %s", cfg.Analysis.Model)
	}
	if cfg.Transcription.Language != "eng" {
		t.Errorf("expected transcription language override, got %s", cfg.Transcription.Language)
	}
}

func TestValidateWorker_MissingRequired(t *testing.T) {
	clearEnv(t, "DATABASE_DSN", "STORAGE_ENDPOINT")
	cfg := Load()

	err := cfg.ValidateWorker()
	if err == nil {
		t.Fatal("expected validation error for missing database.dsn and storage.endpoint")
	}
}

func TestValidateWorker_Complete(t *testing.T) {
	os.Setenv("DATABASE_DSN", "postgres://localhost:5432/callinsight")
	os.Setenv("STORAGE_ENDPOINT", "localhost:9000")
	defer clearEnv(t, "DATABASE_DSN", "STORAGE_ENDPOINT")

	cfg := Load()
	if err := cfg.ValidateWorker(); err != nil {
		t.Fatalf("expected valid worker config, got %v", err)
	}
}

func TestValidateIngestor_BrokersRequiredWhenEnabled(t *testing.T) {
	os.Setenv("DATABASE_DSN", "postgres://localhost:5432/callinsight")
	clearEnv(t, "KAFKA_BROKERS")
	defer clearEnv(t, "DATABASE_DSN")

	cfg := Load()
	cfg.Kafka.Enabled = true
	if err := cfg.ValidateIngestor(); err == nil {
		t.Fatal("expected validation error for missing kafka.brokers")
	}

	cfg.Kafka.Enabled = false
	if err := cfg.ValidateIngestor(); err != nil {
		t.Fatalf("brokers must not be required when kafka disabled, got %v", err)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		count int
	}{
		{"empty", "", 0},
		{"single", "a:9092", 1},
		{"multi with spaces", "a:9092, b:9092 ,c:9092", 3},
		{"trailing comma", "a:9092,", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.in)
			if len(got) != tt.count {
				t.Errorf("splitList(%q) = %v, want %d entries", tt.in, got, tt.count)
			}
		})
	}
}
