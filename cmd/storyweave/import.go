package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/spf13/cobra"

	"github.com/kotvirt/storyweave/store"
)

// storyImport is the on-disk story format for bulk import.
type storyImport struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Themes        []string `json:"themes"`
	Triggers      []string `json:"triggers"`
	EmotionalTone string   `json:"emotional_tone"`
	ContextHints  []string `json:"context_hints"`
}

var importStoriesCmd = &cobra.Command{
	Use:   "import-stories <file.json>",
	Short: "Import stories for the configured bot from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		instanceProfile := loadProfile()
		ctx := context.Background()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		var imports []storyImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		storeInstance, err := setupStore(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer storeInstance.Close()

		now := time.Now().Unix()
		for i, item := range imports {
			if item.Title == "" || item.Content == "" {
				return fmt.Errorf("story %d: title and content are required", i)
			}
			id := item.ID
			if id == "" {
				id = shortuuid.New()
			}
			_, err := storeInstance.UpsertStory(ctx, &store.Story{
				ID:            id,
				BotID:         instanceProfile.BotID,
				Title:         item.Title,
				Content:       item.Content,
				Themes:        item.Themes,
				Triggers:      item.Triggers,
				EmotionalTone: item.EmotionalTone,
				ContextHints:  item.ContextHints,
				CreatedTs:     now,
				UpdatedTs:     now,
			})
			if err != nil {
				return fmt.Errorf("failed to import story %q: %w", item.Title, err)
			}
		}

		slog.Info("stories imported", "bot_id", instanceProfile.BotID, "count", len(imports))
		fmt.Println("Run `storyweave init-embeddings` to index the imported stories.")
		return nil
	},
}
