// Package core declares the ports between the services and the data layer.
package core

import (
	"context"
	"time"
)

// CacheRepository stores memoized remote lookups (survey and message
// catalogs, distribution links, stats and history) as opaque JSON blobs.
type CacheRepository interface {
	// Set stores value under key. A zero TTL keeps the key until it is deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns nil, nil for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the connection to the cache backend.
	Health(ctx context.Context) error
}
