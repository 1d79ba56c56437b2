package store

import "time"

// Story represents a personal story with metadata for matching.
// Content is immutable once imported; usage stats change only through
// UpdateStoryUsage.
type Story struct {
	ID            string
	BotID         string
	Title         string
	Content       string
	Themes        []string // topic tags, e.g. ["childhood", "family"]
	Triggers      []string // keywords that hint relevance
	EmotionalTone string   // "funny", "reflective", "inspiring", ...
	ContextHints  []string // free-form situational tags
	UsedCount     int
	LastUsed      *time.Time
	CreatedTs     int64
	UpdatedTs     int64
}

// FindStory specifies the conditions for listing stories.
type FindStory struct {
	BotID *string
	ID    *string
	Limit int
}

// StoryCandidate is a story projected from vector search alongside its
// similarity and distance to the query vector. Similarity and distance are
// carried independently since the store may use a transform other than
// similarity = 1 - distance.
type StoryCandidate struct {
	Story
	Similarity float32
	Distance   float32
}

// SearchStoriesOptions parameterizes a vector similarity search.
type SearchStoriesOptions struct {
	BotID       string
	Vector      []float32
	ExcludedIDs []string // story ids never returned (already shared in this chat)
	MaxDistance float32  // candidates above this cosine distance are filtered out
	Limit       int
}

// StoryEmbedding associates a story with its query vector for a given model.
type StoryEmbedding struct {
	StoryID   string
	BotID     string
	Embedding []float32
	Model     string
	UpdatedTs int64
}
