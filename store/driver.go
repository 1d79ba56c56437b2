package store

import "context"

// Driver is an interface for the database access layer.
type Driver interface {
	GetDB() any
	Close() error

	Migrate(ctx context.Context) error

	// BotMetadata
	GetBotMetadata(ctx context.Context, botID string) (*BotMetadata, error)
	UpsertBotMetadata(ctx context.Context, metadata *BotMetadata) (*BotMetadata, error)
	UpdateBotMetadata(ctx context.Context, update *UpdateBotMetadata) (*BotMetadata, error)
	ListActiveBotIDs(ctx context.Context) ([]string, error)

	// Story
	ListStories(ctx context.Context, find *FindStory) ([]*Story, error)
	UpsertStory(ctx context.Context, story *Story) (*Story, error)
	UpdateStoryUsage(ctx context.Context, botID, storyID string) error
	ListStoriesWithoutEmbedding(ctx context.Context, botID, model string, limit int) ([]*Story, error)

	// Story vectors
	UpsertStoryEmbedding(ctx context.Context, embedding *StoryEmbedding) error
	SearchStories(ctx context.Context, opts *SearchStoriesOptions) ([]*StoryCandidate, error)

	// ChatMemory
	GetChatMemory(ctx context.Context, botID, chatID string) (*ChatMemory, error)
	UpsertChatMemory(ctx context.Context, memory *ChatMemory) error
}
