// Package storage fetches source audio objects from S3-compatible object
// storage. Objects are read fully into memory; the transcription provider
// takes the whole payload in one request.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// Fetcher retrieves one object as bytes.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// MinioFetcher implements Fetcher over an S3-compatible endpoint.
type MinioFetcher struct {
	client  *minio.Client
	timeout time.Duration
}

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration
}

// NewMinioFetcher creates a fetcher for the configured endpoint.
func NewMinioFetcher(cfg Config) (*MinioFetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &MinioFetcher{client: client, timeout: timeout}, nil
}

// Fetch downloads the object fully, retrying transient failures with a
// short exponential backoff. The whole operation is bounded by the
// configured timeout.
func (f *MinioFetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var data []byte
	operation := func() error {
		obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()

		data, err = io.ReadAll(obj)
		if err != nil {
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = f.timeout
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		log.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("Object fetch failed")
		return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", bucket, key, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Int("bytes", len(data)).Msg("Object fetched")
	return data, nil
}
