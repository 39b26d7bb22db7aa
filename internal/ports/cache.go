package ports

import (
	"context"
	"time"

	"github.com/devbush/vdraft/internal/domain"
)

// CachedItem represents a cached source with its transcript.
type CachedItem struct {
	Media      *domain.Media
	Transcript *domain.Transcript
	AudioPath  string    // extracted audio kept for re-transcription
	CreatedAt  time.Time // when this item was cached
	ExpiresAt  time.Time // when this item should be considered stale
}

// CacheStore handles persistent caching of transcripts keyed by source URL.
type CacheStore interface {
	// Get retrieves a cached item by key, returning domain.ErrCacheMiss if not found.
	Get(ctx context.Context, key string) (*CachedItem, error)

	// Set stores an item in the cache.
	Set(ctx context.Context, key string, item *CachedItem) error

	// Delete removes a specific item from the cache.
	Delete(ctx context.Context, key string) error

	// CleanExpired removes all expired items and returns the count removed.
	CleanExpired(ctx context.Context) (int, error)

	// Clear removes all cached items.
	Clear(ctx context.Context) error

	// GetCacheDir returns the cache directory path for a given key.
	GetCacheDir(key string) string

	// Stats returns cache statistics: item count and total size in bytes.
	Stats(ctx context.Context) (itemCount int, totalSize int64, err error)
}
