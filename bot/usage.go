package bot

import "strings"

// Usage detection decides whether a suggested story actually made it into
// the generated reply. The model retells stories in its own words, so this
// is a heuristic: take the leading sentences of the story and look for
// substantial word overlap with the reply. Usage confirmation only fires on
// a positive detection, never unconditionally.

const (
	usageLeadingSentences = 2
	usageMinSentenceLen   = 20
	usageOverlapThreshold = 0.7
)

func storyUsedInReply(storyContent, reply string) bool {
	normalizedReply := normalizeText(reply)
	if normalizedReply == "" {
		return false
	}
	replyWords := wordSet(normalizedReply)

	sentences := splitSentences(storyContent)
	if len(sentences) > usageLeadingSentences {
		sentences = sentences[:usageLeadingSentences]
	}

	for _, sentence := range sentences {
		normalized := normalizeText(sentence)
		if len(normalized) < usageMinSentenceLen {
			continue
		}
		if strings.Contains(normalizedReply, normalized) {
			return true
		}
		if wordOverlap(normalized, replyWords) >= usageOverlapThreshold {
			return true
		}
	}
	return false
}

// splitSentences breaks text on terminal punctuation. Good enough for
// leading-sentence extraction; no abbreviation handling.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func normalizeText(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\n', r == '\t':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(text) {
		set[word] = struct{}{}
	}
	return set
}

// wordOverlap is the fraction of the sentence's words present in the reply.
func wordOverlap(sentence string, replyWords map[string]struct{}) float64 {
	words := strings.Fields(sentence)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, word := range words {
		if _, ok := replyWords[word]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
