package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder counts remote calls and returns a deterministic vector.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("remote unavailable")
	}
	vec := make([]float32, 4)
	for i := range vec {
		vec[i] = float32(len(text))
	}
	return vec, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = vec
	}
	return result, nil
}

func (e *countingEmbedder) Dimensions() int {
	return 4
}

func TestEmbedCachesByExactText(t *testing.T) {
	ctx := context.Background()
	remote := &countingEmbedder{}
	svc := NewCachedEmbeddingService(remote)

	first, err := svc.Embed(ctx, "hello world")
	require.NoError(t, err)

	second, err := svc.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), remote.calls.Load(), "second call must be a cache hit")
}

func TestEmbedDoesNotNormalizeKeys(t *testing.T) {
	ctx := context.Background()
	remote := &countingEmbedder{}
	svc := NewCachedEmbeddingService(remote)

	_, err := svc.Embed(ctx, "Hello")
	require.NoError(t, err)
	_, err = svc.Embed(ctx, "hello ")
	require.NoError(t, err)

	assert.Equal(t, int64(2), remote.calls.Load())
	assert.Equal(t, 2, svc.Size())
}

func TestEmbedFailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	remote := &countingEmbedder{fail: true}
	svc := NewCachedEmbeddingService(remote)

	_, err := svc.Embed(ctx, "hello")
	require.Error(t, err)
	assert.Zero(t, svc.Size())

	// Recovery: the next call reaches the remote again.
	remote.fail = false
	_, err = svc.Embed(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), remote.calls.Load())
	assert.Equal(t, 1, svc.Size())
}

func TestEmbedConcurrentMissesCoalesce(t *testing.T) {
	ctx := context.Background()
	remote := &countingEmbedder{}
	svc := NewCachedEmbeddingService(remote)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Embed(ctx, "same text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), remote.calls.Load(), "concurrent misses must collapse into one remote call")
}

func TestEmbedBatchOnlyForwardsMisses(t *testing.T) {
	ctx := context.Background()
	remote := &countingEmbedder{}
	svc := NewCachedEmbeddingService(remote)

	_, err := svc.Embed(ctx, "a")
	require.NoError(t, err)

	vectors, err := svc.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, vec := range vectors {
		assert.Len(t, vec, 4)
	}

	// One call for "a", then one each for "b" and "c" via the batch path.
	assert.Equal(t, int64(3), remote.calls.Load())
	assert.Equal(t, 3, svc.Size())
}

func TestJudgmentCacheKeyDependsOnOrderAndContext(t *testing.T) {
	cache, err := NewJudgmentCache()
	require.NoError(t, err)

	base := cache.Key("ctx", []string{"s1", "s2"})

	assert.Equal(t, base, cache.Key("ctx", []string{"s1", "s2"}))
	assert.NotEqual(t, base, cache.Key("ctx", []string{"s2", "s1"}))
	assert.NotEqual(t, base, cache.Key("other", []string{"s1", "s2"}))
}

func TestJudgmentCacheRoundTrip(t *testing.T) {
	cache, err := NewJudgmentCache()
	require.NoError(t, err)

	key := cache.Key("ctx", []string{"s1"})
	cache.Set(key, "payload")
	cache.Wait()

	value, found := cache.Get(key)
	require.True(t, found)
	assert.Equal(t, "payload", value)
}
