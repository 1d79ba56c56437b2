package bot

// themeKeywords maps a conversation theme to the surface words that signal
// it. Deliberately small: themes feed retrieval biasing and the judge
// prompt, so false negatives are cheap and false positives are noisy.
var themeKeywords = map[string][]string{
	"work":          {"job", "work", "boss", "office", "career", "colleague", "deadline"},
	"family":        {"family", "mother", "father", "mom", "dad", "parents", "sister", "brother", "kids"},
	"stress":        {"stress", "stressed", "anxious", "anxiety", "overwhelmed", "pressure", "burnout"},
	"relationships": {"friend", "girlfriend", "boyfriend", "partner", "wife", "husband", "dating"},
	"travel":        {"travel", "trip", "vacation", "flight", "abroad", "visiting"},
	"health":        {"health", "sick", "doctor", "sleep", "tired", "exercise", "gym"},
	"hobbies":       {"hobby", "music", "reading", "cooking", "painting", "gaming", "photography"},
	"school":        {"school", "university", "college", "exam", "studying", "class"},
	"food":          {"food", "dinner", "lunch", "restaurant", "recipe", "eating"},
}

// extractThemes pulls conversation themes out of a user message by keyword
// scan over normalized words.
func extractThemes(message string) []string {
	words := wordSet(normalizeText(message))
	if len(words) == 0 {
		return nil
	}

	var themes []string
	for theme, keywords := range themeKeywords {
		for _, keyword := range keywords {
			if _, ok := words[keyword]; ok {
				themes = append(themes, theme)
				break
			}
		}
	}
	return themes
}
