package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kotvirt/storyweave/ai"
	"github.com/kotvirt/storyweave/store"
)

const embeddingBatchSize = 32

var initEmbeddingsAll bool

var initEmbeddingsCmd = &cobra.Command{
	Use:   "init-embeddings",
	Short: "Generate vectors for stories that do not have one yet",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := loadProfile()
		ctx := context.Background()

		storeInstance, err := setupStore(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		aiConfig := ai.NewConfigFromProfile(instanceProfile)
		if err := aiConfig.Validate(); err != nil {
			return fmt.Errorf("invalid AI configuration: %w", err)
		}
		embedder := ai.NewEmbeddingService(&aiConfig.Embedding)

		botIDs := []string{instanceProfile.BotID}
		if initEmbeddingsAll {
			botIDs, err = storeInstance.ListActiveBotIDs(ctx)
			if err != nil {
				return fmt.Errorf("failed to list bots: %w", err)
			}
		}

		for _, botID := range botIDs {
			if err := embedMissingStories(ctx, storeInstance, embedder, botID, aiConfig.Embedding.Model); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	initEmbeddingsCmd.Flags().BoolVar(&initEmbeddingsAll, "all", false, "process every active bot, not just the configured one")
}

func embedMissingStories(ctx context.Context, storeInstance *store.Store, embedder ai.EmbeddingService, botID, model string) error {
	total := 0
	for {
		stories, err := storeInstance.ListStoriesWithoutEmbedding(ctx, botID, model, embeddingBatchSize)
		if err != nil {
			return fmt.Errorf("failed to list stories without embedding: %w", err)
		}
		if len(stories) == 0 {
			break
		}

		texts := make([]string, len(stories))
		for i, story := range stories {
			texts[i] = embeddingText(story)
		}

		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch: %w", err)
		}

		now := time.Now().Unix()
		for i, story := range stories {
			err := storeInstance.UpsertStoryEmbedding(ctx, &store.StoryEmbedding{
				StoryID:   story.ID,
				BotID:     botID,
				Embedding: vectors[i],
				Model:     model,
				UpdatedTs: now,
			})
			if err != nil {
				return fmt.Errorf("failed to save embedding for story %s: %w", story.ID, err)
			}
		}
		total += len(stories)
	}

	slog.Info("embeddings generated", "bot_id", botID, "stories", total)
	return nil
}

// embeddingText is the canonical text a story is indexed under. Queries are
// free text, so the index side concatenates every matching-relevant field.
func embeddingText(story *store.Story) string {
	parts := []string{story.Title, story.Content}
	if len(story.Themes) > 0 {
		parts = append(parts, "Themes: "+strings.Join(story.Themes, ", "))
	}
	if story.EmotionalTone != "" {
		parts = append(parts, "Tone: "+story.EmotionalTone)
	}
	return strings.Join(parts, "\n")
}
