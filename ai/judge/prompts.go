package judge

import (
	"fmt"
	"strings"

	"github.com/kotvirt/storyweave/store"
)

const rankSystemPrompt = `You evaluate how well personal stories fit an ongoing conversation.
Score each story from 0.0 to 1.0 for how naturally it could be brought up right now.
Consider topical relevance, emotional fit with the conversation's mood, and whether the story would feel forced.
Respond with JSON only, no commentary:
{"evaluations": [{"story_index": 0, "score": 0.8, "reasoning": "one sentence", "factors": ["factor"]}]}
Include one entry per story, using the story index shown in the input.`

const shareSystemPrompt = `You decide whether sharing a specific personal story is appropriate at this exact moment in a conversation.
Relevance is not enough: weigh timing, the depth of the relationship, and whether the user seems open to hearing a story right now.
Respond with JSON only, no commentary:
{"appropriateness_score": 0.7, "reasoning": "one sentence", "factors": ["factor"], "should_share_now": true}`

// maxContentChars bounds how much story text goes into a prompt; titles and
// metadata carry most of the signal and full texts blow the token budget.
const maxContentChars = 400

func buildRankPrompt(conversationContext string, candidates []*store.StoryCandidate, memory *store.ChatMemory) string {
	var b strings.Builder

	b.WriteString("Conversation context:\n")
	b.WriteString(conversationContext)
	b.WriteString("\n\n")
	writeMemory(&b, memory)

	b.WriteString("Candidate stories:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c.Title)
		fmt.Fprintf(&b, "Themes: %s | Tone: %s | Times told: %d\n",
			strings.Join(c.Themes, ", "), c.EmotionalTone, c.UsedCount)
		b.WriteString(truncate(c.Content, maxContentChars))
		b.WriteString("\n\n")
	}

	b.WriteString("Score every story above.")
	return b.String()
}

func buildSharePrompt(conversationContext string, candidate *store.StoryCandidate, memory *store.ChatMemory) string {
	var b strings.Builder

	b.WriteString("Conversation context:\n")
	b.WriteString(conversationContext)
	b.WriteString("\n\n")
	writeMemory(&b, memory)

	b.WriteString("Story under consideration:\n")
	fmt.Fprintf(&b, "%s\n", candidate.Title)
	fmt.Fprintf(&b, "Themes: %s | Tone: %s\n", strings.Join(candidate.Themes, ", "), candidate.EmotionalTone)
	b.WriteString(truncate(candidate.Content, maxContentChars))
	b.WriteString("\n\nWould sharing this story right now feel natural or intrusive?")
	return b.String()
}

func writeMemory(b *strings.Builder, memory *store.ChatMemory) {
	if memory == nil {
		return
	}
	fmt.Fprintf(b, "Relationship stage: %s (%d messages exchanged, %d stories already shared)\n",
		memory.RelationshipStage, memory.MessageCount, len(memory.StoriesShared))
	if themes := memory.RecentThemes(5); len(themes) > 0 {
		fmt.Fprintf(b, "Recent conversation themes: %s\n", strings.Join(themes, ", "))
	}
	if len(memory.UserInterests) > 0 {
		fmt.Fprintf(b, "Known user interests: %s\n", strings.Join(memory.UserInterests, ", "))
	}
	b.WriteString("\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
