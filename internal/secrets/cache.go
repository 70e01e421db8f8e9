// Package secrets provides credential lookup with per-process memoization.
// A credential is fetched once per process instance and reused; rotation is
// picked up by a fresh process, not by invalidation.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Source fetches a named credential from wherever the deployment keeps it.
type Source interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// EnvSource resolves secret ids as environment variable names.
type EnvSource struct{}

// GetSecret returns the value of the environment variable named by id.
func (EnvSource) GetSecret(_ context.Context, id string) (string, error) {
	v, ok := os.LookupEnv(id)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %s is not set", id)
	}
	return v, nil
}

// Cache memoizes successful fetches from an underlying source for the
// lifetime of the process. Failed fetches are not cached, so a transient
// source failure is retried on the next use.
type Cache struct {
	source Source

	mu     sync.Mutex
	values map[string]string
}

// NewCache wraps a source with memoization.
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		values: make(map[string]string),
	}
}

// GetSecret returns the cached value, fetching it from the source on first
// use.
func (c *Cache) GetSecret(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[id]; ok {
		return v, nil
	}
	v, err := c.source.GetSecret(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", id, err)
	}
	c.values[id] = v
	return v, nil
}
