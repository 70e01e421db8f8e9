// The worker serves the stage invocations the external workflow
// orchestrator drives: transcription, analysis, and status writes.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"callinsight/internal/alerts"
	apihttp "callinsight/internal/api/http"
	"callinsight/internal/config"
	"callinsight/internal/observability"
	"callinsight/internal/observability/logging"
	"callinsight/internal/secrets"
	"callinsight/internal/stage/analyze"
	"callinsight/internal/stage/transcribe"
	"callinsight/internal/status"
	"callinsight/internal/storage"
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

	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	recordStore := postgres.NewRecordStore(pool)
	profileStore := postgres.NewProfileStore(pool)
	secretCache := secrets.NewCache(secrets.EnvSource{})

	accessKey, err := secretCache.GetSecret(ctx, cfg.Storage.AccessKeySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve storage access key")
	}
	secretKey, err := secretCache.GetSecret(ctx, cfg.Storage.SecretKeySecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve storage secret key")
	}
	fetcher, err := storage.NewMinioFetcher(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}

	notifier := alerts.New(&alerts.Config{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.AlertsTopic,
	})
	defer notifier.Close()

	tracker := status.NewTracker(recordStore, notifier)

	transcribeStage := transcribe.NewStage(
		recordStore,
		tracker,
		fetcher,
		transcribe.NewHTTPClient(cfg.Transcription),
		secretCache,
		cfg.Secrets.TranscriptionKeyID,
	)
	analyzeStage := analyze.NewStage(
		recordStore,
		profileStore,
		tracker,
		analyze.NewHTTPClient(cfg.Analysis),
		secretCache,
		cfg.Secrets.AnalysisKeyID,
		cfg.Analysis.Model,
	)

	obsServer := observability.NewServer(cfg.Service.ObservabilityAddr, pool.Ping)
	obsServer.Start()

	stageServer := &http.Server{
		Addr:         ":" + cfg.Service.StagePort,
		Handler:      apihttp.NewServer(transcribeStage, analyzeStage, tracker).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // stage invocations carry provider calls
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", stageServer.Addr).Msg("Stage server started")
		if err := stageServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Stage server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stageServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Stage server shutdown failed")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown failed")
	}
}
