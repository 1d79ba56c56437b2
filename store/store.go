package store

import (
	"context"
	"sync"
	"time"

	"github.com/kotvirt/storyweave/internal/profile"
)

// metadataCacheTTL bounds how stale a cached bot metadata record may be.
// Runtime reconfiguration (via the CLI) is picked up within this window.
const metadataCacheTTL = 10 * time.Minute

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	metadataMu      sync.Mutex
	metadataCache   map[string]*BotMetadata
	metadataFetched map[string]time.Time
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:          driver,
		profile:         profile,
		metadataCache:   make(map[string]*BotMetadata),
		metadataFetched: make(map[string]time.Time),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// GetBotMetadata loads bot metadata, serving from the in-process cache when
// fresh enough.
func (s *Store) GetBotMetadata(ctx context.Context, botID string) (*BotMetadata, error) {
	s.metadataMu.Lock()
	if cached, ok := s.metadataCache[botID]; ok {
		if time.Since(s.metadataFetched[botID]) < metadataCacheTTL {
			s.metadataMu.Unlock()
			return cached, nil
		}
	}
	s.metadataMu.Unlock()

	metadata, err := s.driver.GetBotMetadata(ctx, botID)
	if err != nil {
		return nil, err
	}
	if metadata != nil {
		s.metadataMu.Lock()
		s.metadataCache[botID] = metadata
		s.metadataFetched[botID] = time.Now()
		s.metadataMu.Unlock()
	}
	return metadata, nil
}

func (s *Store) UpsertBotMetadata(ctx context.Context, metadata *BotMetadata) (*BotMetadata, error) {
	result, err := s.driver.UpsertBotMetadata(ctx, metadata)
	if err != nil {
		return nil, err
	}
	s.invalidateMetadata(metadata.BotID)
	return result, nil
}

func (s *Store) UpdateBotMetadata(ctx context.Context, update *UpdateBotMetadata) (*BotMetadata, error) {
	result, err := s.driver.UpdateBotMetadata(ctx, update)
	if err != nil {
		return nil, err
	}
	s.invalidateMetadata(update.BotID)
	return result, nil
}

func (s *Store) ListActiveBotIDs(ctx context.Context) ([]string, error) {
	return s.driver.ListActiveBotIDs(ctx)
}

func (s *Store) invalidateMetadata(botID string) {
	s.metadataMu.Lock()
	delete(s.metadataCache, botID)
	delete(s.metadataFetched, botID)
	s.metadataMu.Unlock()
}

func (s *Store) ListStories(ctx context.Context, find *FindStory) ([]*Story, error) {
	return s.driver.ListStories(ctx, find)
}

func (s *Store) UpsertStory(ctx context.Context, story *Story) (*Story, error) {
	return s.driver.UpsertStory(ctx, story)
}

// UpdateStoryUsage increments used_count and stamps last_used for a story.
// Called fire-and-forget after usage detection confirms a story appeared in
// the final reply; it must remain independently retryable from the memory
// save.
func (s *Store) UpdateStoryUsage(ctx context.Context, botID, storyID string) error {
	return s.driver.UpdateStoryUsage(ctx, botID, storyID)
}

func (s *Store) ListStoriesWithoutEmbedding(ctx context.Context, botID, model string, limit int) ([]*Story, error) {
	return s.driver.ListStoriesWithoutEmbedding(ctx, botID, model, limit)
}

func (s *Store) UpsertStoryEmbedding(ctx context.Context, embedding *StoryEmbedding) error {
	return s.driver.UpsertStoryEmbedding(ctx, embedding)
}

func (s *Store) SearchStories(ctx context.Context, opts *SearchStoriesOptions) ([]*StoryCandidate, error) {
	return s.driver.SearchStories(ctx, opts)
}

// LoadChatMemory loads the per-chat memory, creating a default empty record
// when none exists yet.
func (s *Store) LoadChatMemory(ctx context.Context, botID, chatID string) (*ChatMemory, error) {
	memory, err := s.driver.GetChatMemory(ctx, botID, chatID)
	if err != nil {
		return nil, err
	}
	if memory == nil {
		return NewChatMemory(botID, chatID), nil
	}
	return memory, nil
}

func (s *Store) SaveChatMemory(ctx context.Context, memory *ChatMemory) error {
	return s.driver.UpsertChatMemory(ctx, memory)
}
