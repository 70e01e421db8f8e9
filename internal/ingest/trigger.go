package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"callinsight/internal/models"
	"callinsight/internal/observability/logging"
	"callinsight/internal/observability/metrics"
	"callinsight/internal/pipeline"
	"callinsight/internal/store"
)

// Trigger turns storage notifications into call records and pipeline
// instances.
type Trigger struct {
	store        store.RecordStore
	starter      pipeline.Starter
	customHeader string
	maxParallel  int
	metrics      *metrics.Metrics
}

// NewTrigger creates an ingestion trigger. maxParallel bounds how many
// notifications of one batch are processed concurrently; values below one
// mean sequential processing.
func NewTrigger(recordStore store.RecordStore, starter pipeline.Starter, customHeader string, maxParallel int) *Trigger {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Trigger{
		store:        recordStore,
		starter:      starter,
		customHeader: customHeader,
		maxParallel:  maxParallel,
		metrics:      metrics.DefaultMetrics,
	}
}

// ProcessBatch handles one batch of notifications. Items are independent:
// every item is attempted regardless of other failures, and the batch
// fails only if at least one item failed, so the feed's redelivery policy
// kicks in for the whole batch. Redelivered items that already created
// their record are skipped on the next pass.
func (t *Trigger) ProcessBatch(ctx context.Context, batch []Notification) error {
	if len(batch) == 0 {
		return nil
	}

	logger := logging.WithComponent("ingest")
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
		sem    = make(chan struct{}, t.maxParallel)
	)
	for _, n := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(n Notification) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := t.processOne(ctx, n); err != nil {
				logger.Error().
					Err(err).
					Str("messageId", n.ID).
					Msg("Failed to process notification")
				failed.Add(1)
			}
		}(n)
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("failed to process %d of %d notifications", n, len(batch))
	}
	return nil
}

// processOne ingests a single notification: unwrap, create the record,
// start the pipeline. Malformed messages are skipped, not failed.
func (t *Trigger) processOne(ctx context.Context, n Notification) error {
	t.metrics.RecordNotification()
	logger := logging.WithComponent("ingest")

	ev, err := Unwrap(n, t.customHeader)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("messageId", n.ID).
			Msg("Skipping malformed notification")
		t.metrics.RecordNotificationSkipped("malformed")
		return nil
	}

	callID := CallID(ev)
	logger = logging.WithCall(callID)

	rec := models.CallRecord{
		CallID:          callID,
		Status:          models.StatusQueued,
		UploadTimestamp: uploadTime(ev.EventTime),
		Source: models.SourceLocation{
			Bucket: ev.Bucket,
			Key:    ev.Key,
		},
		Metadata: ev.Metadata,
	}

	err = t.store.CreateIfAbsent(ctx, rec)
	if errors.Is(err, store.ErrAlreadyExists) {
		logger.Info().
			Str("bucket", ev.Bucket).
			Str("key", ev.Key).
			Msg("Record already exists, skipping pipeline start")
		t.metrics.RecordDuplicate()
		t.metrics.RecordNotificationSkipped("duplicate")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	t.metrics.RecordCreated()
	logger.Info().
		Str("bucket", ev.Bucket).
		Str("key", ev.Key).
		Msg("Record created")

	input := models.StageRequest{
		CallID:   callID,
		Bucket:   ev.Bucket,
		Key:      ev.Key,
		Metadata: ev.Metadata,
	}
	if err := t.starter.Start(ctx, input); err != nil {
		return fmt.Errorf("failed to start pipeline for call %s: %w", callID, err)
	}
	t.metrics.RecordPipelineStarted()
	return nil
}

// uploadTime parses the storage event timestamp, falling back to the
// time of ingestion when the notification carries none.
func uploadTime(eventTime string) time.Time {
	ts, err := time.Parse(time.RFC3339, eventTime)
	if err != nil {
		return time.Now().UTC()
	}
	return ts.UTC()
}
