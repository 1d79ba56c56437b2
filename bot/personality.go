package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kotvirt/storyweave/ai/matcher"
	"github.com/kotvirt/storyweave/store"
)

// maxStoriesForFrequency maps the persona's sharing frequency to how many
// stories a single reply may weave in.
func maxStoriesForFrequency(frequency string) int {
	switch frequency {
	case "low":
		return 1
	case "high":
		return 3
	default: // moderate
		return 2
	}
}

// maxTokensForLength maps the persona's response length preference to a
// completion token cap.
func maxTokensForLength(preference string) int {
	switch preference {
	case "short":
		return 300
	case "long":
		return 800
	default: // medium
		return 500
	}
}

var stageGuidance = map[string]string{
	store.StageNew:       "You are just getting to know this person. Be warm but not overly familiar; ask questions more than you share.",
	store.StageWarmingUp: "You have chatted a few times. You can be more open and reference earlier topics.",
	store.StageFamiliar:  "You know this person well. Be relaxed and personal, like an old friend.",
}

// buildSystemPrompt assembles the persona instruction for one reply,
// including the stories the matcher suggests weaving in.
func buildSystemPrompt(metadata *store.BotMetadata, memory *store.ChatMemory, matches []*matcher.StoryMatch) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", metadata.DisplayName)
	if metadata.Description != "" {
		b.WriteString(" " + metadata.Description)
	}
	b.WriteString("\n\n")

	if len(metadata.CoreTraits) > 0 {
		fmt.Fprintf(&b, "Core traits: %s.\n", strings.Join(metadata.CoreTraits, ", "))
	}
	// Stable key order keeps the prompt deterministic across turns.
	styleKeys := make([]string, 0, len(metadata.ConversationStyle))
	for key := range metadata.ConversationStyle {
		styleKeys = append(styleKeys, key)
	}
	sort.Strings(styleKeys)
	for _, key := range styleKeys {
		fmt.Fprintf(&b, "Conversation %s: %s.\n", key, metadata.ConversationStyle[key])
	}
	if metadata.BackgroundContext != "" {
		b.WriteString("Background: " + metadata.BackgroundContext + "\n")
	}

	if memory != nil {
		if guidance, ok := stageGuidance[memory.RelationshipStage]; ok {
			b.WriteString("\n" + guidance + "\n")
		}
		if themes := memory.RecentThemes(5); len(themes) > 0 {
			fmt.Fprintf(&b, "Topics from earlier in this conversation: %s.\n", strings.Join(themes, ", "))
		}
	}

	if len(matches) > 0 {
		b.WriteString("\nYou have these personal stories you could naturally weave into your reply. ")
		b.WriteString("Only use a story if it genuinely fits the moment; retell it in your own voice, do not quote it verbatim or announce that you are telling a story.\n")
		for i, match := range matches {
			fmt.Fprintf(&b, "\nStory %d: %s\n%s\n", i+1, match.Story.Title, match.Story.Content)
		}
	}

	b.WriteString("\nStay in character. Never mention that you are an AI or that you have a story database.")
	return b.String()
}
