// Package matcher orchestrates the two-stage story selection pipeline:
// vector retrieval over embeddings, then LLM judgment, fused into a single
// score. All remote failures degrade gracefully; the public operations
// never return an error to the caller.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/kotvirt/storyweave/ai"
	"github.com/kotvirt/storyweave/ai/judge"
	"github.com/kotvirt/storyweave/ai/metrics"
	"github.com/kotvirt/storyweave/store"
)

// Reasoning markers set on matches scored without the judge.
const (
	FallbackReasoning      = "vector similarity only"
	shareFallbackReasoning = "fallback to vector similarity"
)

const (
	// Similarity floors for the two retrieval modes. The share gate is more
	// permissive since it is a binary decision, not a top-N listing.
	rankedMinSimilarity = 0.7
	shareMinSimilarity  = 0.6

	shareCandidateLimit = 3
	shareThreshold      = 0.6

	// Fatigue: once this many stories were shared in one conversation,
	// confidence is dampened to discourage over-sharing.
	fatigueShareCount = 3
	fatiguePenalty    = 0.8
)

// StoryMatch is a fully scored candidate carrying both the vector and the
// judgment signal. Created per call, never persisted.
type StoryMatch struct {
	Story            store.Story
	VectorSimilarity float64
	JudgeScore       float64
	Reasoning        string
	Factors          []string
	Distance         float64
}

// CombinedScore fuses the signals. Vector similarity is the primary cheap
// signal, the judge adds contextual nuance, and the raw distance acts as a
// small tiebreaker in case similarity and distance diverge. The weights are
// product constants, not tunables.
func (m *StoryMatch) CombinedScore() float64 {
	return 0.5*m.VectorSimilarity + 0.4*m.JudgeScore + 0.1*(1.0-math.Min(m.Distance, 1.0))
}

// ShareDecision is the outcome of the share/no-share gate. Match is only
// set when ShouldShare is true.
type ShareDecision struct {
	ShouldShare bool
	Confidence  float64
	Match       *StoryMatch
	Reasoning   string
}

// Embedder produces a query vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs a similarity search over stored story vectors.
type VectorSearcher interface {
	SearchStories(ctx context.Context, opts *store.SearchStoriesOptions) ([]*store.StoryCandidate, error)
}

// Matcher composes embedding, vector search, and judgment into the two
// public matching operations.
type Matcher struct {
	embedder Embedder
	searcher VectorSearcher
	judge    judge.Service
}

// New creates a story matcher.
func New(embedder Embedder, searcher VectorSearcher, judgeService judge.Service) *Matcher {
	return &Matcher{
		embedder: embedder,
		searcher: searcher,
		judge:    judgeService,
	}
}

// FindRelevantStories returns up to maxStories matches ranked by combined
// score. Stories already shared in this chat are excluded. Remote failures
// degrade: a dead judge falls back to vector-only scoring, and embedding or
// search failures yield an empty result with a logged error.
func (m *Matcher) FindRelevantStories(ctx context.Context, botID, conversationContext string, memory *store.ChatMemory, maxStories int) []*StoryMatch {
	if maxStories <= 0 {
		return nil
	}

	candidates := m.retrieve(ctx, botID, conversationContext, memory, rankedMinSimilarity, 2*maxStories)
	if len(candidates) == 0 {
		return nil
	}

	matches := m.judgeCandidates(ctx, conversationContext, candidates, memory)
	applyBoosts(matches, memory)

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CombinedScore() > matches[j].CombinedScore()
	})
	if len(matches) > maxStories {
		matches = matches[:maxStories]
	}
	return matches
}

// ShouldShareStory decides whether the bot should proactively weave a story
// into its next reply. Only the single best candidate is considered; its
// combined score is adjusted by relationship stage and by a fatigue penalty
// before being compared against a fixed threshold.
func (m *Matcher) ShouldShareStory(ctx context.Context, botID, conversationContext string, memory *store.ChatMemory) *ShareDecision {
	candidates := m.retrieve(ctx, botID, conversationContext, memory, shareMinSimilarity, shareCandidateLimit)
	if len(candidates) == 0 {
		metrics.ShareDecisions.WithLabelValues("no_candidates").Inc()
		return &ShareDecision{Reasoning: "no stories above threshold"}
	}

	best := candidates[0]
	match := &StoryMatch{
		Story:            best.Story,
		VectorSimilarity: float64(best.Similarity),
		Distance:         float64(best.Distance),
	}

	judgment, err := m.judge.JudgeShareNow(ctx, conversationContext, best, memory)
	if err != nil {
		metrics.JudgeFallbacks.Inc()
		slog.Warn("matcher: share judgment failed, falling back to vector similarity",
			"bot_id", botID,
			"story_id", best.ID,
			"error", err,
		)
		match.JudgeScore = float64(best.Similarity)
		match.Reasoning = shareFallbackReasoning
	} else {
		match.JudgeScore = judgment.Score
		match.Reasoning = judgment.Reasoning
		match.Factors = judgment.Factors
	}

	adjusted := match.CombinedScore() * stageMultiplier(memory)
	if memory != nil && len(memory.StoriesShared) >= fatigueShareCount {
		adjusted *= fatiguePenalty
	}

	decision := &ShareDecision{
		ShouldShare: adjusted >= shareThreshold,
		Confidence:  adjusted,
		Reasoning: fmt.Sprintf("confidence %.3f vs threshold %.2f: %s",
			adjusted, shareThreshold, match.Reasoning),
	}
	if decision.ShouldShare {
		decision.Match = match
		metrics.ShareDecisions.WithLabelValues("share").Inc()
	} else {
		metrics.ShareDecisions.WithLabelValues("hold").Inc()
	}
	return decision
}

// retrieve embeds the enhanced query and runs the vector search. Both
// failure modes produce an empty candidate list; they are logged and
// counted distinctly from a legitimate empty result.
func (m *Matcher) retrieve(ctx context.Context, botID, conversationContext string, memory *store.ChatMemory, minSimilarity float64, limit int) []*store.StoryCandidate {
	query := buildEnhancedQuery(conversationContext, memory)

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RetrievalErrors.WithLabelValues("embedding").Inc()
		slog.Error("matcher: query embedding failed",
			"bot_id", botID,
			"error", fmt.Errorf("%w: %w", ai.ErrEmbeddingProvider, err),
		)
		return nil
	}

	var excluded []string
	if memory != nil {
		excluded = memory.StoriesShared
	}

	candidates, err := m.searcher.SearchStories(ctx, &store.SearchStoriesOptions{
		BotID:       botID,
		Vector:      vector,
		ExcludedIDs: excluded,
		MaxDistance: float32(1.0 - minSimilarity),
		Limit:       limit,
	})
	if err != nil {
		metrics.RetrievalErrors.WithLabelValues("vector_search").Inc()
		slog.Error("matcher: vector search failed",
			"bot_id", botID,
			"error", fmt.Errorf("%w: %w", ai.ErrVectorStore, err),
		)
		return nil
	}
	return candidates
}

// judgeCandidates ranks candidates through the judge, re-associating
// evaluations by index. On judge failure every candidate survives with
// vector similarity standing in for the judge score.
func (m *Matcher) judgeCandidates(ctx context.Context, conversationContext string, candidates []*store.StoryCandidate, memory *store.ChatMemory) []*StoryMatch {
	evaluations, err := m.judge.RankStories(ctx, conversationContext, candidates, memory)
	if err != nil {
		metrics.JudgeFallbacks.Inc()
		slog.Warn("matcher: judgment failed, falling back to vector similarity",
			"candidates", len(candidates),
			"error", err,
		)
		matches := make([]*StoryMatch, len(candidates))
		for i, c := range candidates {
			matches[i] = &StoryMatch{
				Story:            c.Story,
				VectorSimilarity: float64(c.Similarity),
				JudgeScore:       float64(c.Similarity),
				Reasoning:        FallbackReasoning,
				Distance:         float64(c.Distance),
			}
		}
		return matches
	}

	matches := make([]*StoryMatch, 0, len(evaluations))
	for _, e := range evaluations {
		c := candidates[e.Index]
		matches = append(matches, &StoryMatch{
			Story:            c.Story,
			VectorSimilarity: float64(c.Similarity),
			JudgeScore:       e.Score,
			Reasoning:        e.Reasoning,
			Factors:          e.Factors,
			Distance:         float64(c.Distance),
		})
	}
	return matches
}

// applyBoosts rewards interest overlap and novelty. The interest boost goes
// to the judge score, clamped to 1.0; the novelty boost goes to the vector
// similarity so rarely told stories edge out well-worn ones.
func applyBoosts(matches []*StoryMatch, memory *store.ChatMemory) {
	for _, m := range matches {
		if memory != nil && len(memory.UserInterests) > 0 {
			boost := 0.0
			for _, theme := range m.Story.Themes {
				for _, interest := range memory.UserInterests {
					if strings.EqualFold(theme, interest) {
						boost += 0.1
					}
				}
			}
			if boost > 0 {
				m.JudgeScore = math.Min(m.JudgeScore+boost, 1.0)
			}
		}

		switch {
		case m.Story.UsedCount == 0:
			m.VectorSimilarity += 0.1
		case m.Story.UsedCount < 3:
			m.VectorSimilarity += 0.05
		}
	}
}

// buildEnhancedQuery biases retrieval toward the conversation's accumulated
// state, not just the current utterance.
func buildEnhancedQuery(conversationContext string, memory *store.ChatMemory) string {
	parts := []string{conversationContext}
	if memory != nil {
		if themes := memory.RecentThemes(5); len(themes) > 0 {
			parts = append(parts, "Recent conversation themes: "+strings.Join(themes, ", "))
		}
		if len(memory.UserInterests) > 0 {
			parts = append(parts, "User interests: "+strings.Join(memory.UserInterests, ", "))
		}
		parts = append(parts, "Relationship stage: "+memory.RelationshipStage)
	}
	return strings.Join(parts, ". ")
}

func stageMultiplier(memory *store.ChatMemory) float64 {
	if memory == nil {
		return 0.7
	}
	switch memory.RelationshipStage {
	case store.StageFamiliar:
		return 1.2
	case store.StageWarmingUp:
		return 1.0
	default:
		return 0.7
	}
}
