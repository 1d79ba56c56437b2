package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/kotvirt/storyweave/ai/metrics"
)

// JudgmentCache memoizes judgment results keyed by (context, candidate set).
// Judged contexts are naturally low-cardinality per conversation, but the
// bot is long-running, so the cache is bounded rather than an append-only
// map.
type JudgmentCache struct {
	cache *ristretto.Cache
}

// NewJudgmentCache creates a bounded judgment cache.
func NewJudgmentCache() (*JudgmentCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000, // ~10x expected max entries, for admission stats
		MaxCost:     1_000,  // entries, each stored with cost 1
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &JudgmentCache{cache: cache}, nil
}

// Key derives the cache key from the context string and the ordered
// candidate id tuple.
func (c *JudgmentCache) Key(context string, candidateIDs []string) string {
	contextHash := sha256.Sum256([]byte(context))
	idsHash := sha256.Sum256([]byte(strings.Join(candidateIDs, "\x1f")))
	return hex.EncodeToString(contextHash[:8]) + ":" + hex.EncodeToString(idsHash[:8])
}

// Get returns the cached judgment payload for a key.
func (c *JudgmentCache) Get(key string) (any, bool) {
	value, found := c.cache.Get(key)
	if found {
		metrics.JudgmentCacheHits.Inc()
	}
	return value, found
}

// Set stores a judgment payload. Admission is best-effort; a rejected
// write only costs a future remote call.
func (c *JudgmentCache) Set(key string, value any) {
	c.cache.Set(key, value, 1)
}

// Wait blocks until buffered writes are applied. Used by tests.
func (c *JudgmentCache) Wait() {
	c.cache.Wait()
}
