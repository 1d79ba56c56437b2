// Package metrics exposes prometheus counters for the matching pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmbeddingCacheHits counts embedding requests served from cache.
	EmbeddingCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "embedding_cache_hits_total",
		Help:      "Embedding requests served from the in-process cache.",
	})

	// EmbeddingCacheMisses counts embedding requests forwarded to the provider.
	EmbeddingCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "embedding_cache_misses_total",
		Help:      "Embedding requests forwarded to the remote provider.",
	})

	// JudgmentCacheHits counts judgment requests served from cache.
	JudgmentCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "judgment_cache_hits_total",
		Help:      "Judgment requests served from the in-process cache.",
	})

	// JudgeFallbacks counts rankings degraded to vector-only scoring.
	JudgeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "judge_fallbacks_total",
		Help:      "Rankings that fell back to vector-similarity-only scoring.",
	})

	// RetrievalErrors counts hot-path embedding/vector failures by stage.
	RetrievalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "retrieval_errors_total",
		Help:      "Embedding or vector search failures on the retrieval hot path.",
	}, []string{"stage"})

	// ShareDecisions counts share/no-share outcomes.
	ShareDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storyweave",
		Name:      "share_decisions_total",
		Help:      "Outcomes of should-share decisions.",
	}, []string{"outcome"})
)
