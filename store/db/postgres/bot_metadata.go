package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kotvirt/storyweave/store"
)

// GetBotMetadata loads the metadata record for a bot, or nil when absent.
func (d *DB) GetBotMetadata(ctx context.Context, botID string) (*store.BotMetadata, error) {
	query := `
		SELECT
			bot_id, name, display_name, description, welcome_message,
			core_traits, conversation_style, background_context,
			story_sharing_frequency, relationship_building_speed, response_length_preference,
			version, is_active, created_ts, updated_ts
		FROM bot_metadata
		WHERE bot_id = ` + placeholder(1)

	metadata, err := scanBotMetadata(d.db.QueryRowContext(ctx, query, botID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get bot metadata")
	}
	return metadata, nil
}

// UpsertBotMetadata inserts or replaces a bot metadata record.
func (d *DB) UpsertBotMetadata(ctx context.Context, metadata *store.BotMetadata) (*store.BotMetadata, error) {
	now := time.Now().Unix()
	if metadata.CreatedTs == 0 {
		metadata.CreatedTs = now
	}
	metadata.UpdatedTs = now

	style, err := json.Marshal(metadata.ConversationStyle)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal conversation style")
	}

	stmt := `
		INSERT INTO bot_metadata (
			bot_id, name, display_name, description, welcome_message,
			core_traits, conversation_style, background_context,
			story_sharing_frequency, relationship_building_speed, response_length_preference,
			version, is_active, created_ts, updated_ts
		)
		VALUES (` + placeholders(15) + `)
		ON CONFLICT (bot_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			welcome_message = EXCLUDED.welcome_message,
			core_traits = EXCLUDED.core_traits,
			conversation_style = EXCLUDED.conversation_style,
			background_context = EXCLUDED.background_context,
			story_sharing_frequency = EXCLUDED.story_sharing_frequency,
			relationship_building_speed = EXCLUDED.relationship_building_speed,
			response_length_preference = EXCLUDED.response_length_preference,
			version = EXCLUDED.version,
			is_active = EXCLUDED.is_active,
			updated_ts = EXCLUDED.updated_ts
	`

	if _, err := d.db.ExecContext(ctx, stmt,
		metadata.BotID,
		metadata.Name,
		metadata.DisplayName,
		metadata.Description,
		metadata.WelcomeMessage,
		pq.Array(metadata.CoreTraits),
		style,
		metadata.BackgroundContext,
		metadata.StorySharingFrequency,
		metadata.RelationshipBuildingSpeed,
		metadata.ResponseLengthPreference,
		metadata.Version,
		metadata.IsActive,
		metadata.CreatedTs,
		metadata.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert bot metadata")
	}

	return metadata, nil
}

// UpdateBotMetadata applies a partial update. Only non-nil fields change.
func (d *DB) UpdateBotMetadata(ctx context.Context, update *store.UpdateBotMetadata) (*store.BotMetadata, error) {
	set, args := []string{}, []any{}

	if update.Name != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *update.Name)
	}
	if update.DisplayName != nil {
		set, args = append(set, "display_name = "+placeholder(len(args)+1)), append(args, *update.DisplayName)
	}
	if update.Description != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *update.Description)
	}
	if update.WelcomeMessage != nil {
		set, args = append(set, "welcome_message = "+placeholder(len(args)+1)), append(args, *update.WelcomeMessage)
	}
	if update.CoreTraits != nil {
		set, args = append(set, "core_traits = "+placeholder(len(args)+1)), append(args, pq.Array(*update.CoreTraits))
	}
	if update.ConversationStyle != nil {
		style, err := json.Marshal(*update.ConversationStyle)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal conversation style")
		}
		set, args = append(set, "conversation_style = "+placeholder(len(args)+1)), append(args, style)
	}
	if update.BackgroundContext != nil {
		set, args = append(set, "background_context = "+placeholder(len(args)+1)), append(args, *update.BackgroundContext)
	}
	if update.StorySharingFrequency != nil {
		set, args = append(set, "story_sharing_frequency = "+placeholder(len(args)+1)), append(args, *update.StorySharingFrequency)
	}
	if update.RelationshipBuildingSpeed != nil {
		set, args = append(set, "relationship_building_speed = "+placeholder(len(args)+1)), append(args, *update.RelationshipBuildingSpeed)
	}
	if update.ResponseLengthPreference != nil {
		set, args = append(set, "response_length_preference = "+placeholder(len(args)+1)), append(args, *update.ResponseLengthPreference)
	}
	if update.Version != nil {
		set, args = append(set, "version = "+placeholder(len(args)+1)), append(args, *update.Version)
	}
	if update.IsActive != nil {
		set, args = append(set, "is_active = "+placeholder(len(args)+1)), append(args, *update.IsActive)
	}

	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, time.Now().Unix())
	args = append(args, update.BotID)

	stmt := `
		UPDATE bot_metadata
		SET ` + strings.Join(set, ", ") + `
		WHERE bot_id = ` + placeholder(len(args)) + `
		RETURNING
			bot_id, name, display_name, description, welcome_message,
			core_traits, conversation_style, background_context,
			story_sharing_frequency, relationship_building_speed, response_length_preference,
			version, is_active, created_ts, updated_ts
	`

	metadata, err := scanBotMetadata(d.db.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update bot metadata")
	}
	return metadata, nil
}

// ListActiveBotIDs returns the ids of all bots marked active.
func (d *DB) ListActiveBotIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT bot_id FROM bot_metadata WHERE is_active ORDER BY bot_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active bots")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan bot id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBotMetadata(row rowScanner) (*store.BotMetadata, error) {
	var metadata store.BotMetadata
	var style []byte

	err := row.Scan(
		&metadata.BotID,
		&metadata.Name,
		&metadata.DisplayName,
		&metadata.Description,
		&metadata.WelcomeMessage,
		pq.Array(&metadata.CoreTraits),
		&style,
		&metadata.BackgroundContext,
		&metadata.StorySharingFrequency,
		&metadata.RelationshipBuildingSpeed,
		&metadata.ResponseLengthPreference,
		&metadata.Version,
		&metadata.IsActive,
		&metadata.CreatedTs,
		&metadata.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}

	if len(style) > 0 {
		if err := json.Unmarshal(style, &metadata.ConversationStyle); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal conversation style")
		}
	}
	return &metadata, nil
}
