package application

import (
	"context"
	"errors"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

// CacheStats holds cache statistics
type CacheStats struct {
	ItemCount int
	TotalSize int64
}

// CacheService handles cache management operations
type CacheService struct {
	cache ports.CacheStore
}

// NewCacheService creates a new cache service
func NewCacheService(cache ports.CacheStore) *CacheService {
	return &CacheService{cache: cache}
}

// Stats returns cache statistics
func (s *CacheService) Stats(ctx context.Context) (*CacheStats, error) {
	count, size, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &CacheStats{
		ItemCount: count,
		TotalSize: size,
	}, nil
}

// Lookup returns the cached transcript for a source URL, if any.
func (s *CacheService) Lookup(ctx context.Context, sourceURL string) (*ports.CachedItem, bool, error) {
	item, err := s.cache.Get(ctx, domain.MediaKey(sourceURL))
	switch {
	case err == nil:
		return item, true, nil
	case errors.Is(err, domain.ErrCacheMiss), errors.Is(err, domain.ErrCacheExpired):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Forget drops the cached entry for a source URL.
func (s *CacheService) Forget(ctx context.Context, sourceURL string) error {
	return s.cache.Delete(ctx, domain.MediaKey(sourceURL))
}

// CleanExpired removes expired cache entries
func (s *CacheService) CleanExpired(ctx context.Context) (int, error) {
	return s.cache.CleanExpired(ctx)
}

// Clear removes all cache entries
func (s *CacheService) Clear(ctx context.Context) error {
	return s.cache.Clear(ctx)
}
