package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kotvirt/storyweave/store"
)

// GetChatMemory loads the memory for a chat, or nil when none exists.
func (d *DB) GetChatMemory(ctx context.Context, botID, chatID string) (*store.ChatMemory, error) {
	query := `
		SELECT
			bot_id, chat_id, stories_shared, conversation_themes, user_interests,
			relationship_stage, message_count, last_interaction
		FROM chat_memory
		WHERE bot_id = ` + placeholder(1) + ` AND chat_id = ` + placeholder(2)

	var memory store.ChatMemory
	err := d.db.QueryRowContext(ctx, query, botID, chatID).Scan(
		&memory.BotID,
		&memory.ChatID,
		pq.Array(&memory.StoriesShared),
		pq.Array(&memory.ConversationThemes),
		pq.Array(&memory.UserInterests),
		&memory.RelationshipStage,
		&memory.MessageCount,
		&memory.LastInteraction,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get chat memory")
	}
	return &memory, nil
}

// UpsertChatMemory writes the full memory record for a chat.
func (d *DB) UpsertChatMemory(ctx context.Context, memory *store.ChatMemory) error {
	stmt := `
		INSERT INTO chat_memory (
			bot_id, chat_id, stories_shared, conversation_themes, user_interests,
			relationship_stage, message_count, last_interaction
		)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (bot_id, chat_id)
		DO UPDATE SET
			stories_shared = EXCLUDED.stories_shared,
			conversation_themes = EXCLUDED.conversation_themes,
			user_interests = EXCLUDED.user_interests,
			relationship_stage = EXCLUDED.relationship_stage,
			message_count = EXCLUDED.message_count,
			last_interaction = EXCLUDED.last_interaction
	`

	if _, err := d.db.ExecContext(ctx, stmt,
		memory.BotID,
		memory.ChatID,
		pq.Array(memory.StoriesShared),
		pq.Array(memory.ConversationThemes),
		pq.Array(memory.UserInterests),
		memory.RelationshipStage,
		memory.MessageCount,
		memory.LastInteraction,
	); err != nil {
		return errors.Wrap(err, "failed to upsert chat memory")
	}
	return nil
}
