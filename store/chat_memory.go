package store

import (
	"slices"
	"strings"
	"time"
)

// Relationship stages, ordered. A chat only ever moves forward through them.
const (
	StageNew       = "new"
	StageWarmingUp = "warming_up"
	StageFamiliar  = "familiar"
)

// Message-count thresholds driving stage transitions.
const (
	warmingUpThreshold = 5
	familiarThreshold  = 20
)

// ChatMemory is the per-chat conversational state, keyed by bot + chat.
type ChatMemory struct {
	ChatID             string
	BotID              string
	StoriesShared      []string // story ids already surfaced, never returned again
	ConversationThemes []string // most-recent-last, deduplicated
	UserInterests      []string
	RelationshipStage  string
	MessageCount       int
	LastInteraction    time.Time
}

// NewChatMemory returns the default empty record for a chat.
func NewChatMemory(botID, chatID string) *ChatMemory {
	return &ChatMemory{
		ChatID:             chatID,
		BotID:              botID,
		StoriesShared:      []string{},
		ConversationThemes: []string{},
		UserInterests:      []string{},
		RelationshipStage:  StageNew,
		LastInteraction:    time.Now().UTC(),
	}
}

// StageForMessageCount derives the relationship stage from a message count.
func StageForMessageCount(count int) string {
	switch {
	case count > familiarThreshold:
		return StageFamiliar
	case count > warmingUpThreshold:
		return StageWarmingUp
	default:
		return StageNew
	}
}

func stageRank(stage string) int {
	switch stage {
	case StageFamiliar:
		return 2
	case StageWarmingUp:
		return 1
	default:
		return 0
	}
}

// RecordTurn advances the memory by one completed conversation turn.
// The stage never regresses, even if the stored stage is ahead of what the
// message count alone would imply.
func (m *ChatMemory) RecordTurn(now time.Time) {
	m.MessageCount++
	m.LastInteraction = now

	derived := StageForMessageCount(m.MessageCount)
	if stageRank(derived) > stageRank(m.RelationshipStage) {
		m.RelationshipStage = derived
	}
}

// MarkStoryShared records a story id as surfaced in this chat.
// Duplicates are ignored; the set only grows.
func (m *ChatMemory) MarkStoryShared(storyID string) {
	if slices.Contains(m.StoriesShared, storyID) {
		return
	}
	m.StoriesShared = append(m.StoriesShared, storyID)
}

// AddTheme appends a theme keyword if not already present (case-insensitive).
func (m *ChatMemory) AddTheme(theme string) {
	for _, t := range m.ConversationThemes {
		if strings.EqualFold(t, theme) {
			return
		}
	}
	m.ConversationThemes = append(m.ConversationThemes, theme)
}

// RecentThemes returns the up-to-n most recent conversation themes.
func (m *ChatMemory) RecentThemes(n int) []string {
	if len(m.ConversationThemes) <= n {
		return m.ConversationThemes
	}
	return m.ConversationThemes[len(m.ConversationThemes)-n:]
}
