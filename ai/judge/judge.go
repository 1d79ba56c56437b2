// Package judge scores candidate stories against conversational context
// using a chat LLM, with structured-JSON parsing and per-candidate
// fault isolation.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kotvirt/storyweave/ai"
	"github.com/kotvirt/storyweave/ai/cache"
	"github.com/kotvirt/storyweave/ai/llm"
	"github.com/kotvirt/storyweave/store"
)

// Evaluation is the judged relevance of one candidate, re-associated by
// index into the candidate slice that was judged.
type Evaluation struct {
	Index     int
	Score     float64 // 0..1
	Reasoning string
	Factors   []string
}

// ShareJudgment is the appropriateness verdict for a single candidate:
// "is sharing appropriate right now", not just "is this relevant".
type ShareJudgment struct {
	Score          float64 // 0..1
	Reasoning      string
	Factors        []string
	ShouldShareNow bool
}

// Service is the judgment provider interface.
type Service interface {
	// RankStories judges the relevance of every candidate. The result
	// carries one entry per surviving candidate in unspecified order;
	// re-associate by Index, not position.
	RankStories(ctx context.Context, conversationContext string, candidates []*store.StoryCandidate, memory *store.ChatMemory) ([]Evaluation, error)

	// JudgeShareNow judges whether sharing the single best candidate is
	// appropriate at this point in the conversation.
	JudgeShareNow(ctx context.Context, conversationContext string, candidate *store.StoryCandidate, memory *store.ChatMemory) (*ShareJudgment, error)
}

type service struct {
	llm   llm.Service
	cache *cache.JudgmentCache
}

// NewService creates a judgment service. The cache may be nil, which
// disables memoization.
func NewService(llmService llm.Service, judgmentCache *cache.JudgmentCache) Service {
	return &service{llm: llmService, cache: judgmentCache}
}

// rankPayload mirrors the JSON contract of the bulk ranking prompt.
type rankPayload struct {
	Evaluations []struct {
		StoryIndex int      `json:"story_index"`
		Score      float64  `json:"score"`
		Reasoning  string   `json:"reasoning"`
		Factors    []string `json:"factors"`
	} `json:"evaluations"`
}

// sharePayload mirrors the JSON contract of the single-candidate gate.
type sharePayload struct {
	AppropriatenessScore float64  `json:"appropriateness_score"`
	Reasoning            string   `json:"reasoning"`
	Factors              []string `json:"factors"`
	ShouldShareNow       bool     `json:"should_share_now"`
}

func (s *service) RankStories(ctx context.Context, conversationContext string, candidates []*store.StoryCandidate, memory *store.ChatMemory) ([]Evaluation, error) {
	if len(candidates) == 0 {
		return []Evaluation{}, nil
	}

	key := s.cacheKey("rank", conversationContext, candidates)
	if key != "" {
		if cached, found := s.cache.Get(key); found {
			if evaluations, ok := cached.([]Evaluation); ok {
				return evaluations, nil
			}
		}
	}

	messages := []llm.Message{
		llm.SystemPrompt(rankSystemPrompt),
		llm.UserMessage(buildRankPrompt(conversationContext, candidates, memory)),
	}

	response, _, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrJudgmentProvider, err)
	}

	payload, err := extractPayload(response)
	if err != nil {
		return nil, err
	}

	var parsed rankPayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrJudgmentParse, err)
	}

	evaluations := make([]Evaluation, 0, len(parsed.Evaluations))
	for _, e := range parsed.Evaluations {
		if e.StoryIndex < 0 || e.StoryIndex >= len(candidates) {
			// A hallucinated index drops that entry, never the batch.
			slog.Warn("judge: dropping out-of-range story index",
				"index", e.StoryIndex,
				"candidates", len(candidates),
			)
			continue
		}
		evaluations = append(evaluations, Evaluation{
			Index:     e.StoryIndex,
			Score:     clamp01(e.Score),
			Reasoning: e.Reasoning,
			Factors:   e.Factors,
		})
	}

	if key != "" {
		s.cache.Set(key, evaluations)
	}
	return evaluations, nil
}

func (s *service) JudgeShareNow(ctx context.Context, conversationContext string, candidate *store.StoryCandidate, memory *store.ChatMemory) (*ShareJudgment, error) {
	key := s.cacheKey("share", conversationContext, []*store.StoryCandidate{candidate})
	if key != "" {
		if cached, found := s.cache.Get(key); found {
			if judgment, ok := cached.(*ShareJudgment); ok {
				return judgment, nil
			}
		}
	}

	messages := []llm.Message{
		llm.SystemPrompt(shareSystemPrompt),
		llm.UserMessage(buildSharePrompt(conversationContext, candidate, memory)),
	}

	response, _, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrJudgmentProvider, err)
	}

	payload, err := extractPayload(response)
	if err != nil {
		return nil, err
	}

	var parsed sharePayload
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrJudgmentParse, err)
	}

	judgment := &ShareJudgment{
		Score:          clamp01(parsed.AppropriatenessScore),
		Reasoning:      parsed.Reasoning,
		Factors:        parsed.Factors,
		ShouldShareNow: parsed.ShouldShareNow,
	}

	if key != "" {
		s.cache.Set(key, judgment)
	}
	return judgment, nil
}

func (s *service) cacheKey(kind, conversationContext string, candidates []*store.StoryCandidate) string {
	if s.cache == nil {
		return ""
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	return s.cache.Key(kind+"\x00"+conversationContext, ids)
}

// extractPayload locates the JSON object in a model response: the substring
// from the first '{' to the last '}'. Models often wrap the payload in prose
// or code fences; anything outside the braces is ignored.
func extractPayload(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", ai.ErrJudgmentParse)
	}
	return response[start : end+1], nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
