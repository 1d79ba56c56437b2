package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kotvirt/storyweave/ai/matcher"
	"github.com/kotvirt/storyweave/store"
)

func TestMaxStoriesForFrequency(t *testing.T) {
	assert.Equal(t, 1, maxStoriesForFrequency("low"))
	assert.Equal(t, 2, maxStoriesForFrequency("moderate"))
	assert.Equal(t, 3, maxStoriesForFrequency("high"))
	assert.Equal(t, 2, maxStoriesForFrequency(""), "unknown values fall back to moderate")
}

func TestMaxTokensForLength(t *testing.T) {
	assert.Equal(t, 300, maxTokensForLength("short"))
	assert.Equal(t, 500, maxTokensForLength("medium"))
	assert.Equal(t, 800, maxTokensForLength("long"))
	assert.Equal(t, 500, maxTokensForLength(""))
}

func TestBuildSystemPromptIncludesPersonaAndStories(t *testing.T) {
	metadata := &store.BotMetadata{
		DisplayName:       "Alex",
		Description:       "A retired sailor with too many anecdotes.",
		CoreTraits:        []string{"warm", "curious"},
		ConversationStyle: map[string]string{"tone": "playful", "approach": "direct"},
		BackgroundContext: "Grew up in a small coastal town.",
	}
	memory := store.NewChatMemory("bot1", "chat1")
	memory.RelationshipStage = store.StageFamiliar
	memory.ConversationThemes = []string{"travel", "food"}

	matches := []*matcher.StoryMatch{
		{Story: store.Story{Title: "The storm of 1998", Content: "We were three days from port..."}},
	}

	prompt := buildSystemPrompt(metadata, memory, matches)

	assert.Contains(t, prompt, "You are Alex.")
	assert.Contains(t, prompt, "retired sailor")
	assert.Contains(t, prompt, "warm, curious")
	assert.Contains(t, prompt, "Conversation approach: direct.")
	assert.Contains(t, prompt, "Conversation tone: playful.")
	assert.Contains(t, prompt, "coastal town")
	assert.Contains(t, prompt, stageGuidance[store.StageFamiliar])
	assert.Contains(t, prompt, "travel, food")
	assert.Contains(t, prompt, "Story 1: The storm of 1998")
	assert.Contains(t, prompt, "three days from port")
}

func TestBuildSystemPromptWithoutStories(t *testing.T) {
	metadata := &store.BotMetadata{DisplayName: "Alex"}

	prompt := buildSystemPrompt(metadata, nil, nil)

	assert.Contains(t, prompt, "You are Alex.")
	assert.NotContains(t, prompt, "Story 1")
	assert.Contains(t, prompt, "Stay in character.")
}
