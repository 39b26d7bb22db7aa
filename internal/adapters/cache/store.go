package cache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spf13/afero"

	"github.com/devbush/vdraft/internal/domain"
	"github.com/devbush/vdraft/internal/ports"
)

const (
	metaFileName = "meta.json"
	hotSize      = 256
	hotTTL       = 15 * time.Minute
)

// FileCache stores one directory per key holding meta.json plus any audio.
// Recently used entries are also kept in memory.
type FileCache struct {
	fs      afero.Fs
	baseDir string
	hot     *expirable.LRU[string, *ports.CachedItem]
	now     func() time.Time
}

// NewFileCache creates a cache on the local filesystem.
func NewFileCache(baseDir string) *FileCache {
	return NewFileCacheFs(afero.NewOsFs(), baseDir)
}

// NewFileCacheFs creates a cache on fs.
func NewFileCacheFs(fs afero.Fs, baseDir string) *FileCache {
	return &FileCache{
		fs:      fs,
		baseDir: baseDir,
		hot:     expirable.NewLRU[string, *ports.CachedItem](hotSize, nil, hotTTL),
		now:     time.Now,
	}
}

type metaFile struct {
	Media      *domain.Media      `json:"media"`
	Transcript *domain.Transcript `json:"transcript"`
	AudioPath  string             `json:"audio_path"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

func (c *FileCache) GetCacheDir(key string) string {
	return filepath.Join(c.baseDir, key)
}

func (c *FileCache) metaPath(key string) string {
	return filepath.Join(c.GetCacheDir(key), metaFileName)
}

func (c *FileCache) Get(ctx context.Context, key string) (*ports.CachedItem, error) {
	if item, ok := c.hot.Get(key); ok {
		if c.now().After(item.ExpiresAt) {
			c.hot.Remove(key)
			return nil, domain.ErrCacheExpired
		}
		return item, nil
	}

	item, err := c.readMeta(key)
	if err != nil {
		return nil, err
	}
	if c.now().After(item.ExpiresAt) {
		return nil, domain.ErrCacheExpired
	}

	c.hot.Add(key, item)
	return item, nil
}

func (c *FileCache) readMeta(key string) (*ports.CachedItem, error) {
	data, err := afero.ReadFile(c.fs, c.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrCacheMiss
		}
		return nil, err
	}

	var meta metaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &ports.CachedItem{
		Media:      meta.Media,
		Transcript: meta.Transcript,
		AudioPath:  meta.AudioPath,
		CreatedAt:  meta.CreatedAt,
		ExpiresAt:  meta.ExpiresAt,
	}, nil
}

func (c *FileCache) Set(ctx context.Context, key string, item *ports.CachedItem) error {
	if err := c.fs.MkdirAll(c.GetCacheDir(key), 0755); err != nil {
		return err
	}

	meta := metaFile{
		Media:      item.Media,
		Transcript: item.Transcript,
		AudioPath:  item.AudioPath,
		CreatedAt:  item.CreatedAt,
		ExpiresAt:  item.ExpiresAt,
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	if err := afero.WriteFile(c.fs, c.metaPath(key), data, 0644); err != nil {
		return err
	}
	c.hot.Add(key, item)
	return nil
}

func (c *FileCache) Delete(ctx context.Context, key string) error {
	c.hot.Remove(key)
	return c.fs.RemoveAll(c.GetCacheDir(key))
}

func (c *FileCache) CleanExpired(ctx context.Context) (int, error) {
	entries, err := afero.ReadDir(c.fs, c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cleaned := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		key := entry.Name()
		if _, err := c.Get(ctx, key); errors.Is(err, domain.ErrCacheExpired) {
			if err := c.Delete(ctx, key); err == nil {
				cleaned++
			}
		}
	}

	return cleaned, nil
}

func (c *FileCache) Clear(ctx context.Context) error {
	c.hot.Purge()

	entries, err := afero.ReadDir(c.fs, c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			_ = c.fs.RemoveAll(filepath.Join(c.baseDir, entry.Name()))
		}
	}

	return nil
}

func (c *FileCache) Stats(ctx context.Context) (itemCount int, totalSize int64, err error) {
	entries, err := afero.ReadDir(c.fs, c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		itemCount++

		dirPath := filepath.Join(c.baseDir, entry.Name())
		_ = afero.Walk(c.fs, dirPath, func(path string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				totalSize += info.Size()
			}
			return nil
		})
	}

	return itemCount, totalSize, nil
}

var _ ports.CacheStore = (*FileCache)(nil)
