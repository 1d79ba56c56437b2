package bot

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotvirt/storyweave/ai/judge"
	"github.com/kotvirt/storyweave/ai/llm"
	"github.com/kotvirt/storyweave/ai/matcher"
	"github.com/kotvirt/storyweave/internal/profile"
	"github.com/kotvirt/storyweave/store"
)

// fakeDriver is an in-memory store.Driver covering what a conversation turn
// touches.
type fakeDriver struct {
	mu         sync.Mutex
	metadata   *store.BotMetadata
	memories   map[string]*store.ChatMemory
	candidates []*store.StoryCandidate
	usageCalls []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{memories: make(map[string]*store.ChatMemory)}
}

func (d *fakeDriver) GetDB() any                        { return nil }
func (d *fakeDriver) Close() error                      { return nil }
func (d *fakeDriver) Migrate(ctx context.Context) error { return nil }

func (d *fakeDriver) GetBotMetadata(ctx context.Context, botID string) (*store.BotMetadata, error) {
	return d.metadata, nil
}

func (d *fakeDriver) UpsertBotMetadata(ctx context.Context, metadata *store.BotMetadata) (*store.BotMetadata, error) {
	d.metadata = metadata
	return metadata, nil
}

func (d *fakeDriver) UpdateBotMetadata(ctx context.Context, update *store.UpdateBotMetadata) (*store.BotMetadata, error) {
	return d.metadata, nil
}

func (d *fakeDriver) ListActiveBotIDs(ctx context.Context) ([]string, error) { return nil, nil }

func (d *fakeDriver) ListStories(ctx context.Context, find *store.FindStory) ([]*store.Story, error) {
	return nil, nil
}

func (d *fakeDriver) UpsertStory(ctx context.Context, story *store.Story) (*store.Story, error) {
	return story, nil
}

func (d *fakeDriver) UpdateStoryUsage(ctx context.Context, botID, storyID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.usageCalls = append(d.usageCalls, storyID)
	return nil
}

func (d *fakeDriver) ListStoriesWithoutEmbedding(ctx context.Context, botID, model string, limit int) ([]*store.Story, error) {
	return nil, nil
}

func (d *fakeDriver) UpsertStoryEmbedding(ctx context.Context, embedding *store.StoryEmbedding) error {
	return nil
}

func (d *fakeDriver) SearchStories(ctx context.Context, opts *store.SearchStoriesOptions) ([]*store.StoryCandidate, error) {
	var out []*store.StoryCandidate
	for _, c := range d.candidates {
		if c.BotID != opts.BotID {
			continue
		}
		if slices.Contains(opts.ExcludedIDs, c.ID) {
			continue
		}
		if c.Distance > opts.MaxDistance {
			continue
		}
		out = append(out, c)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (d *fakeDriver) GetChatMemory(ctx context.Context, botID, chatID string) (*store.ChatMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memories[botID+"/"+chatID], nil
}

func (d *fakeDriver) UpsertChatMemory(ctx context.Context, memory *store.ChatMemory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memories[memory.BotID+"/"+memory.ChatID] = memory
	return nil
}

func (d *fakeDriver) usage() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.usageCalls)
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fixedJudge struct {
	score float64
}

func (j fixedJudge) RankStories(ctx context.Context, conversationContext string, candidates []*store.StoryCandidate, memory *store.ChatMemory) ([]judge.Evaluation, error) {
	evaluations := make([]judge.Evaluation, len(candidates))
	for i := range candidates {
		evaluations[i] = judge.Evaluation{Index: i, Score: j.score, Reasoning: "fits"}
	}
	return evaluations, nil
}

func (j fixedJudge) JudgeShareNow(ctx context.Context, conversationContext string, candidate *store.StoryCandidate, memory *store.ChatMemory) (*judge.ShareJudgment, error) {
	return &judge.ShareJudgment{Score: j.score, Reasoning: "fits", ShouldShareNow: j.score >= 0.5}, nil
}

type fixedLLM struct {
	reply      string
	lastSystem string
}

func (l *fixedLLM) Chat(ctx context.Context, messages []llm.Message) (string, *llm.CallStats, error) {
	return l.ChatWithLimit(ctx, messages, 0)
}

func (l *fixedLLM) ChatWithLimit(ctx context.Context, messages []llm.Message, maxTokens int) (string, *llm.CallStats, error) {
	if len(messages) > 0 && messages[0].Role == "system" {
		l.lastSystem = messages[0].Content
	}
	return l.reply, &llm.CallStats{}, nil
}

func (l *fixedLLM) Warmup(ctx context.Context) {}

const dogStory = "When I was twelve my dog ran away for three days. We found him at the old mill."

func setupBot(t *testing.T, driver *fakeDriver, judgeService judge.Service, llmService llm.Service) *Bot {
	t.Helper()

	if driver.metadata == nil {
		driver.metadata = &store.BotMetadata{
			BotID:                    "bot1",
			DisplayName:              "Alex",
			StorySharingFrequency:    "moderate",
			ResponseLengthPreference: "short",
			IsActive:                 true,
		}
	}

	st := store.New(driver, &profile.Profile{BotID: "bot1"})
	m := matcher.New(fixedEmbedder{}, st, judgeService)
	b := New("bot1", st, m, llmService)
	require.NoError(t, b.Initialize(context.Background()))
	return b
}

func TestHandleMessageWeavesStoryAndUpdatesMemory(t *testing.T) {
	driver := newFakeDriver()
	driver.candidates = []*store.StoryCandidate{{
		Story: store.Story{
			ID:      "dog-story",
			BotID:   "bot1",
			Title:   "The runaway dog",
			Content: dogStory,
			Themes:  []string{"childhood", "family"},
		},
		Similarity: 0.9,
		Distance:   0.1,
	}}

	llmStub := &fixedLLM{reply: "Oh, that reminds me! When I was twelve my dog ran away for three days. Hang in there."}
	b := setupBot(t, driver, fixedJudge{score: 0.9}, llmStub)

	memory, _ := driver.GetChatMemory(context.Background(), "bot1", "chat1")
	require.Nil(t, memory, "no memory before the first turn")

	reply, err := b.HandleMessage(context.Background(), "chat1", "I'm so stressed about my job")
	require.NoError(t, err)
	assert.Equal(t, llmStub.reply, reply)

	// The story reached the prompt.
	assert.Contains(t, llmStub.lastSystem, "The runaway dog")
	assert.Contains(t, llmStub.lastSystem, "Alex")

	saved, err := driver.GetChatMemory(context.Background(), "bot1", "chat1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 1, saved.MessageCount)
	assert.Equal(t, []string{"dog-story"}, saved.StoriesShared)
	assert.ElementsMatch(t, []string{"work", "stress"}, saved.ConversationThemes)

	// Usage confirmation is fire-and-forget.
	require.Eventually(t, func() bool {
		return slices.Contains(driver.usage(), "dog-story")
	}, time.Second, 10*time.Millisecond)
}

func TestHandleMessageSharedStoryNeverResurfaces(t *testing.T) {
	driver := newFakeDriver()
	driver.candidates = []*store.StoryCandidate{{
		Story:      store.Story{ID: "dog-story", BotID: "bot1", Title: "The runaway dog", Content: dogStory},
		Similarity: 0.9,
		Distance:   0.1,
	}}

	llmStub := &fixedLLM{reply: "When I was twelve my dog ran away for three days. Wild times."}
	b := setupBot(t, driver, fixedJudge{score: 0.9}, llmStub)

	_, err := b.HandleMessage(context.Background(), "chat1", "tell me something about you")
	require.NoError(t, err)

	llmStub.lastSystem = ""
	_, err = b.HandleMessage(context.Background(), "chat1", "tell me something about you")
	require.NoError(t, err)

	assert.NotContains(t, llmStub.lastSystem, "The runaway dog",
		"a shared story must be excluded from later candidate sets")
}

func TestHandleMessageHoldsBackOnLowConfidence(t *testing.T) {
	driver := newFakeDriver()
	driver.candidates = []*store.StoryCandidate{{
		Story:      store.Story{ID: "dog-story", BotID: "bot1", Title: "The runaway dog", Content: dogStory},
		Similarity: 0.65,
		Distance:   0.35,
	}}

	llmStub := &fixedLLM{reply: "That sounds tough, tell me more."}
	// Low judge score: a new relationship with a mediocre match must not share.
	b := setupBot(t, driver, fixedJudge{score: 0.3}, llmStub)

	reply, err := b.HandleMessage(context.Background(), "chat1", "hello there")
	require.NoError(t, err)
	assert.Equal(t, llmStub.reply, reply)
	assert.NotContains(t, llmStub.lastSystem, "The runaway dog")

	saved, err := driver.GetChatMemory(context.Background(), "bot1", "chat1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Empty(t, saved.StoriesShared)
	assert.Empty(t, driver.usage())
}

func TestInitializeRejectsMissingOrInactiveBot(t *testing.T) {
	driver := newFakeDriver()
	st := store.New(driver, &profile.Profile{})
	b := New("bot1", st, nil, nil)
	assert.Error(t, b.Initialize(context.Background()), "missing metadata is fatal")

	driver2 := newFakeDriver()
	driver2.metadata = &store.BotMetadata{BotID: "bot1", IsActive: false}
	st2 := store.New(driver2, &profile.Profile{})
	b2 := New("bot1", st2, nil, nil)
	assert.Error(t, b2.Initialize(context.Background()))
}

func TestWelcomeMessageFallback(t *testing.T) {
	driver := newFakeDriver()
	b := setupBot(t, driver, fixedJudge{score: 0.9}, &fixedLLM{reply: "hi"})
	assert.NotEmpty(t, b.WelcomeMessage())

	driver.metadata.WelcomeMessage = "Hey, I'm Alex!"
	assert.Equal(t, "Hey, I'm Alex!", b.WelcomeMessage())
}
