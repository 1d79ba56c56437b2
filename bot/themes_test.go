package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractThemes(t *testing.T) {
	themes := extractThemes("I'm so stressed about my job, my boss keeps piling on deadlines")

	assert.ElementsMatch(t, []string{"work", "stress"}, themes)
}

func TestExtractThemesCaseInsensitive(t *testing.T) {
	themes := extractThemes("My MOTHER is visiting next week")

	assert.Contains(t, themes, "family")
	assert.Contains(t, themes, "travel")
}

func TestExtractThemesNoMatch(t *testing.T) {
	assert.Empty(t, extractThemes("hmm interesting"))
	assert.Empty(t, extractThemes(""))
}

func TestExtractThemesWholeWordsOnly(t *testing.T) {
	// "jobless" must not trigger "job".
	assert.Empty(t, extractThemes("feeling jobless lately"))
}
