// Package bot runs a single persona: it handles conversation turns,
// consults the story matcher, generates replies, and maintains the per-chat
// memory that biases future matching.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kotvirt/storyweave/ai/llm"
	"github.com/kotvirt/storyweave/ai/matcher"
	"github.com/kotvirt/storyweave/store"
)

// usageUpdateTimeout bounds the fire-and-forget usage confirmation write.
const usageUpdateTimeout = 10 * time.Second

// Bot ties the persona metadata, the matcher, and the reply LLM together
// for one bot id.
type Bot struct {
	botID    string
	store    *store.Store
	matcher  *matcher.Matcher
	llm      llm.Service
	metadata *store.BotMetadata
	locks    *chatLocks
}

// New creates a Bot. Initialize must be called before handling messages.
func New(botID string, st *store.Store, m *matcher.Matcher, llmService llm.Service) *Bot {
	return &Bot{
		botID:   botID,
		store:   st,
		matcher: m,
		llm:     llmService,
		locks:   newChatLocks(),
	}
}

// Initialize loads the persona configuration. Missing metadata is fatal:
// a bot without a persona cannot converse.
func (b *Bot) Initialize(ctx context.Context) error {
	metadata, err := b.store.GetBotMetadata(ctx, b.botID)
	if err != nil {
		return errors.Wrap(err, "load bot metadata")
	}
	if metadata == nil {
		return errors.Errorf("no metadata found for bot %s", b.botID)
	}
	if !metadata.IsActive {
		return errors.Errorf("bot %s is not active", b.botID)
	}
	b.metadata = metadata

	slog.Info("bot initialized",
		"bot_id", b.botID,
		"display_name", metadata.DisplayName,
		"story_frequency", metadata.StorySharingFrequency,
	)
	return nil
}

// WelcomeMessage returns the persona's greeting for new chats.
func (b *Bot) WelcomeMessage() string {
	if b.metadata != nil && b.metadata.WelcomeMessage != "" {
		return b.metadata.WelcomeMessage
	}
	return "Hi! Nice to meet you."
}

// HandleMessage processes one conversation turn and returns the reply text.
// Turns for the same chat are serialized; the memory write-back completes
// before the next turn for that chat begins.
func (b *Bot) HandleMessage(ctx context.Context, chatID, userMessage string) (string, error) {
	unlock := b.locks.acquire(chatID)
	defer unlock()

	// Turn id correlates the log lines of one turn across the pipeline.
	turnID := uuid.NewString()

	memory, err := b.store.LoadChatMemory(ctx, b.botID, chatID)
	if err != nil {
		return "", errors.Wrap(err, "load chat memory")
	}

	var suggested []*matcher.StoryMatch
	decision := b.matcher.ShouldShareStory(ctx, b.botID, userMessage, memory)
	if decision.ShouldShare {
		maxStories := maxStoriesForFrequency(b.metadata.StorySharingFrequency)
		suggested = b.matcher.FindRelevantStories(ctx, b.botID, userMessage, memory, maxStories)
	}
	slog.Debug("turn prepared",
		"turn_id", turnID,
		"bot_id", b.botID,
		"chat_id", chatID,
		"share", decision.ShouldShare,
		"confidence", decision.Confidence,
		"suggested", len(suggested),
	)

	reply, err := b.generateReply(ctx, memory, suggested, userMessage)
	if err != nil {
		return "", err
	}

	b.confirmStoryUsage(memory, suggested, reply)

	for _, theme := range extractThemes(userMessage) {
		memory.AddTheme(theme)
	}
	memory.RecordTurn(time.Now().UTC())

	if err := b.store.SaveChatMemory(ctx, memory); err != nil {
		// The reply was already generated; losing one memory update is
		// better than dropping the turn.
		slog.Error("chat memory save failed",
			"bot_id", b.botID,
			"chat_id", chatID,
			"error", err,
		)
	}
	return reply, nil
}

func (b *Bot) generateReply(ctx context.Context, memory *store.ChatMemory, suggested []*matcher.StoryMatch, userMessage string) (string, error) {
	messages := []llm.Message{
		llm.SystemPrompt(buildSystemPrompt(b.metadata, memory, suggested)),
		llm.UserMessage(userMessage),
	}

	maxTokens := maxTokensForLength(b.metadata.ResponseLengthPreference)
	reply, stats, err := b.llm.ChatWithLimit(ctx, messages, maxTokens)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	if stats != nil {
		slog.Debug("reply generated",
			"bot_id", b.botID,
			"total_tokens", stats.TotalTokens,
			"duration_ms", stats.TotalDurationMs,
		)
	}
	return reply, nil
}

// confirmStoryUsage marks suggested stories that detectably appeared in the
// reply. The memory is authoritative: a story marked shared here is never
// suggested again in this chat even if the usage-count write below is lost.
func (b *Bot) confirmStoryUsage(memory *store.ChatMemory, suggested []*matcher.StoryMatch, reply string) {
	for _, match := range suggested {
		if !storyUsedInReply(match.Story.Content, reply) {
			continue
		}
		memory.MarkStoryShared(match.Story.ID)

		storyID := match.Story.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), usageUpdateTimeout)
			defer cancel()
			if err := b.store.UpdateStoryUsage(ctx, b.botID, storyID); err != nil {
				slog.Error("story usage update failed",
					"bot_id", b.botID,
					"story_id", storyID,
					"error", err,
				)
			}
		}()
	}
}
