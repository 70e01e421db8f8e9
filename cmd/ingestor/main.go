// The ingestor consumes storage-change notifications, creates call
// records, and starts pipeline instances for the worker's stages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"callinsight/internal/config"
	"callinsight/internal/ingest"
	"callinsight/internal/observability"
	"callinsight/internal/observability/logging"
	"callinsight/internal/pipeline"
	"callinsight/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: time.RFC3339,
	})

	if err := cfg.ValidateIngestor(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	starter := pipeline.New(&pipeline.Config{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.PipelineTopic,
	})
	defer starter.Close()

	trigger := ingest.NewTrigger(
		postgres.NewRecordStore(pool),
		starter,
		cfg.Ingest.CustomParamsHeader,
		cfg.Ingest.MaxParallel,
	)

	obsServer := observability.NewServer(cfg.Service.ObservabilityAddr, pool.Ping)
	obsServer.Start()

	consumer := ingest.NewConsumer(ingest.ConsumerConfig{
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.NotificationsTopic,
		GroupID:   cfg.Kafka.NotificationsGroup,
		BatchSize: cfg.Ingest.BatchSize,
	}, trigger)
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Notification consumer failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown failed")
	}
}
