// Package cache provides process-lifetime memoization for the remote AI
// calls of the matching pipeline.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kotvirt/storyweave/ai/metrics"
)

// EmbeddingService is a local interface mirroring ai.EmbeddingService to
// avoid a circular dependency.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CachedEmbeddingService memoizes text -> vector computations for the
// process lifetime. The cache key is the exact text, no normalization.
// Entries are only written on success, so a failed remote call is retried
// on the next request instead of poisoning the cache. Concurrent misses for
// the same text are collapsed into a single remote call.
type CachedEmbeddingService struct {
	inner EmbeddingService

	mu      sync.RWMutex
	entries map[string][]float32
	group   singleflight.Group
}

// NewCachedEmbeddingService wraps an embedding service with memoization.
func NewCachedEmbeddingService(inner EmbeddingService) *CachedEmbeddingService {
	return &CachedEmbeddingService{
		inner:   inner,
		entries: make(map[string][]float32),
	}
}

func (c *CachedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.RLock()
	vec, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		metrics.EmbeddingCacheHits.Inc()
		return vec, nil
	}

	result, err, _ := c.group.Do(text, func() (any, error) {
		// A concurrent caller may have populated the entry while this one
		// waited on the flight group.
		c.mu.RLock()
		vec, ok := c.entries[text]
		c.mu.RUnlock()
		if ok {
			metrics.EmbeddingCacheHits.Inc()
			return vec, nil
		}

		metrics.EmbeddingCacheMisses.Inc()
		vec, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[text] = vec
		c.mu.Unlock()
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

// EmbedBatch caches per text, forwarding only the misses in one request.
func (c *CachedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	missing := []int{}

	c.mu.RLock()
	for i, text := range texts {
		if vec, ok := c.entries[text]; ok {
			result[i] = vec
		} else {
			missing = append(missing, i)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return result, nil
	}

	missingTexts := make([]string, len(missing))
	for i, idx := range missing {
		missingTexts[i] = texts[idx]
	}

	vectors, err := c.inner.EmbedBatch(ctx, missingTexts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for i, idx := range missing {
		result[idx] = vectors[i]
		c.entries[texts[idx]] = vectors[i]
	}
	c.mu.Unlock()

	return result, nil
}

func (c *CachedEmbeddingService) Dimensions() int {
	return c.inner.Dimensions()
}

// Size returns the number of cached entries.
func (c *CachedEmbeddingService) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
