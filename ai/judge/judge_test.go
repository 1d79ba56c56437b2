package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotvirt/storyweave/ai"
	"github.com/kotvirt/storyweave/ai/cache"
	"github.com/kotvirt/storyweave/ai/llm"
	"github.com/kotvirt/storyweave/store"
)

// scriptedLLM replays canned responses and records how often it was called.
type scriptedLLM struct {
	response string
	err      error
	calls    int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	s.calls++
	return s.response, &llm.CallStats{}, s.err
}

func (s *scriptedLLM) ChatWithLimit(ctx context.Context, messages []llm.Message, maxTokens int) (string, *llm.CallStats, error) {
	return s.Chat(ctx, messages)
}

func (s *scriptedLLM) Warmup(ctx context.Context) {}

func candidates(ids ...string) []*store.StoryCandidate {
	result := make([]*store.StoryCandidate, len(ids))
	for i, id := range ids {
		result[i] = &store.StoryCandidate{
			Story:      store.Story{ID: id, Title: "t-" + id, Content: "c-" + id},
			Similarity: 0.8,
			Distance:   0.2,
		}
	}
	return result
}

func TestRankStoriesParsesEvaluations(t *testing.T) {
	mock := &scriptedLLM{response: `Sure, here is the ranking:
{"evaluations": [
  {"story_index": 0, "score": 0.9, "reasoning": "on topic", "factors": ["topical_match"]},
  {"story_index": 1, "score": 0.4, "reasoning": "tangential", "factors": []}
]}`}
	svc := NewService(mock, nil)

	evaluations, err := svc.RankStories(context.Background(), "talking about work", candidates("s1", "s2"), nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)

	assert.Equal(t, 0, evaluations[0].Index)
	assert.Equal(t, 0.9, evaluations[0].Score)
	assert.Equal(t, "on topic", evaluations[0].Reasoning)
	assert.Equal(t, []string{"topical_match"}, evaluations[0].Factors)
	assert.Equal(t, 1, evaluations[1].Index)
}

func TestRankStoriesDropsOutOfRangeIndices(t *testing.T) {
	mock := &scriptedLLM{response: `{"evaluations": [
  {"story_index": 0, "score": 0.9, "reasoning": "ok"},
  {"story_index": 7, "score": 0.8, "reasoning": "hallucinated"},
  {"story_index": -1, "score": 0.8, "reasoning": "hallucinated"}
]}`}
	svc := NewService(mock, nil)

	evaluations, err := svc.RankStories(context.Background(), "ctx", candidates("s1", "s2"), nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 1)
	assert.Equal(t, 0, evaluations[0].Index)
}

func TestRankStoriesClampsScores(t *testing.T) {
	mock := &scriptedLLM{response: `{"evaluations": [
  {"story_index": 0, "score": 1.7, "reasoning": "overshoot"},
  {"story_index": 1, "score": -0.3, "reasoning": "undershoot"}
]}`}
	svc := NewService(mock, nil)

	evaluations, err := svc.RankStories(context.Background(), "ctx", candidates("s1", "s2"), nil)
	require.NoError(t, err)
	require.Len(t, evaluations, 2)
	assert.Equal(t, 1.0, evaluations[0].Score)
	assert.Equal(t, 0.0, evaluations[1].Score)
}

func TestRankStoriesProviderError(t *testing.T) {
	mock := &scriptedLLM{err: errors.New("connection refused")}
	svc := NewService(mock, nil)

	_, err := svc.RankStories(context.Background(), "ctx", candidates("s1"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrJudgmentProvider)
}

func TestRankStoriesParseError(t *testing.T) {
	for name, response := range map[string]string{
		"no braces":    "I cannot rank these stories.",
		"invalid json": `{"evaluations": [}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewService(&scriptedLLM{response: response}, nil)
			_, err := svc.RankStories(context.Background(), "ctx", candidates("s1"), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ai.ErrJudgmentParse)
		})
	}
}

func TestRankStoriesEmptyCandidates(t *testing.T) {
	mock := &scriptedLLM{}
	svc := NewService(mock, nil)

	evaluations, err := svc.RankStories(context.Background(), "ctx", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, evaluations)
	assert.Zero(t, mock.calls, "no candidates means no LLM call")
}

func TestRankStoriesUsesCache(t *testing.T) {
	judgmentCache, err := cache.NewJudgmentCache()
	require.NoError(t, err)

	mock := &scriptedLLM{response: `{"evaluations": [{"story_index": 0, "score": 0.5, "reasoning": "r"}]}`}
	svc := NewService(mock, judgmentCache)

	first, err := svc.RankStories(context.Background(), "ctx", candidates("s1"), nil)
	require.NoError(t, err)
	judgmentCache.Wait()

	second, err := svc.RankStories(context.Background(), "ctx", candidates("s1"), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.calls, "second ranking must come from cache")
}

func TestJudgeShareNowParsesJudgment(t *testing.T) {
	mock := &scriptedLLM{response: "```json\n" + `{"appropriateness_score": 0.75, "reasoning": "user just opened up", "factors": ["emotional_alignment"], "should_share_now": true}` + "\n```"}
	svc := NewService(mock, nil)

	judgment, err := svc.JudgeShareNow(context.Background(), "ctx", candidates("s1")[0], nil)
	require.NoError(t, err)
	assert.Equal(t, 0.75, judgment.Score)
	assert.Equal(t, "user just opened up", judgment.Reasoning)
	assert.True(t, judgment.ShouldShareNow)
}

func TestJudgeShareNowProviderError(t *testing.T) {
	svc := NewService(&scriptedLLM{err: errors.New("timeout")}, nil)

	_, err := svc.JudgeShareNow(context.Background(), "ctx", candidates("s1")[0], nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrJudgmentProvider)
}

func TestRankAndShareCacheKeysDoNotCollide(t *testing.T) {
	judgmentCache, err := cache.NewJudgmentCache()
	require.NoError(t, err)

	rank := &scriptedLLM{response: `{"evaluations": [{"story_index": 0, "score": 0.5, "reasoning": "r"}]}`}
	svc := NewService(rank, judgmentCache)

	_, err = svc.RankStories(context.Background(), "ctx", candidates("s1"), nil)
	require.NoError(t, err)
	judgmentCache.Wait()

	// Same context and candidate set through the share path must not hit
	// the rank entry.
	share := NewService(&scriptedLLM{response: `{"appropriateness_score": 0.6, "reasoning": "r", "should_share_now": false}`}, judgmentCache)
	judgment, err := share.JudgeShareNow(context.Background(), "ctx", candidates("s1")[0], nil)
	require.NoError(t, err)
	assert.Equal(t, 0.6, judgment.Score)
}

func TestExtractPayload(t *testing.T) {
	payload, err := extractPayload("prefix {\"a\": {\"b\": 1}} suffix")
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 1}}`, payload)
}
