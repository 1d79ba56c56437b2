package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/kotvirt/storyweave/store"
)

const storyColumns = `id, bot_id, title, content, themes, triggers, emotional_tone, context_hints, used_count, last_used, created_ts, updated_ts`

// ListStories lists stories matching the find conditions.
func (d *DB) ListStories(ctx context.Context, find *store.FindStory) ([]*store.Story, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.BotID != nil {
		where, args = append(where, "bot_id = "+placeholder(len(args)+1)), append(args, *find.BotID)
	}
	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}

	query := `
		SELECT ` + storyColumns + `
		FROM story
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ASC
	`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stories")
	}
	defer rows.Close()

	list := []*store.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan story")
		}
		list = append(list, story)
	}
	return list, rows.Err()
}

// UpsertStory inserts or updates a story. used_count and last_used are not
// touched on conflict; they only move through UpdateStoryUsage.
func (d *DB) UpsertStory(ctx context.Context, story *store.Story) (*store.Story, error) {
	now := time.Now().Unix()
	if story.CreatedTs == 0 {
		story.CreatedTs = now
	}
	story.UpdatedTs = now

	stmt := `
		INSERT INTO story (` + storyColumns + `)
		VALUES (` + placeholders(12) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			themes = EXCLUDED.themes,
			triggers = EXCLUDED.triggers,
			emotional_tone = EXCLUDED.emotional_tone,
			context_hints = EXCLUDED.context_hints,
			updated_ts = EXCLUDED.updated_ts
	`

	var lastUsed any
	if story.LastUsed != nil {
		lastUsed = *story.LastUsed
	}

	if _, err := d.db.ExecContext(ctx, stmt,
		story.ID,
		story.BotID,
		story.Title,
		story.Content,
		pq.Array(story.Themes),
		pq.Array(story.Triggers),
		story.EmotionalTone,
		pq.Array(story.ContextHints),
		story.UsedCount,
		lastUsed,
		story.CreatedTs,
		story.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert story")
	}

	return story, nil
}

// UpdateStoryUsage increments used_count and stamps last_used.
// The increment happens in SQL so concurrent confirmations never lose counts.
func (d *DB) UpdateStoryUsage(ctx context.Context, botID, storyID string) error {
	stmt := `
		UPDATE story
		SET used_count = used_count + 1, last_used = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND bot_id = ` + placeholder(3)

	result, err := d.db.ExecContext(ctx, stmt, time.Now().UTC(), storyID, botID)
	if err != nil {
		return errors.Wrap(err, "failed to update story usage")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("story %s not found for bot %s", storyID, botID)
	}
	return nil
}

// ListStoriesWithoutEmbedding finds stories missing a vector for the model.
func (d *DB) ListStoriesWithoutEmbedding(ctx context.Context, botID, model string, limit int) ([]*store.Story, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + prefixColumns("s", storyColumns) + `
		FROM story s
		LEFT JOIN story_embedding e ON s.id = e.story_id AND e.model = ` + placeholder(1) + `
		WHERE e.story_id IS NULL
			AND s.bot_id = ` + placeholder(2) + `
			AND LENGTH(s.content) > 0
		ORDER BY s.created_ts ASC
		LIMIT ` + placeholder(3)

	rows, err := d.db.QueryContext(ctx, query, model, botID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list stories without embedding")
	}
	defer rows.Close()

	list := []*store.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan story")
		}
		list = append(list, story)
	}
	return list, rows.Err()
}

// UpsertStoryEmbedding inserts or updates a story embedding.
func (d *DB) UpsertStoryEmbedding(ctx context.Context, embedding *store.StoryEmbedding) error {
	embedding.UpdatedTs = time.Now().Unix()

	stmt := `
		INSERT INTO story_embedding (story_id, bot_id, model, embedding, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (story_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
	`

	if _, err := d.db.ExecContext(ctx, stmt,
		embedding.StoryID,
		embedding.BotID,
		embedding.Model,
		pgvector.NewVector(embedding.Embedding),
		embedding.UpdatedTs,
	); err != nil {
		return errors.Wrap(err, "failed to upsert story embedding")
	}
	return nil
}

// SearchStories performs vector similarity search using pgvector.
// The <=> operator computes cosine distance (1 - cosine similarity), so
// ordering by it ascending yields the closest stories first. Results are
// scoped to the bot, exclusion-filtered, and cut at the distance threshold;
// an empty result is not an error.
func (d *DB) SearchStories(ctx context.Context, opts *store.SearchStoriesOptions) ([]*store.StoryCandidate, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	vector := pgvector.NewVector(opts.Vector)

	where := []string{
		"s.bot_id = " + placeholder(1),
		"e.embedding <=> " + placeholder(2) + " <= " + placeholder(3),
	}
	args := []any{opts.BotID, vector, opts.MaxDistance}

	if len(opts.ExcludedIDs) > 0 {
		where = append(where, "s.id <> ALL("+placeholder(len(args)+1)+")")
		args = append(args, pq.Array(opts.ExcludedIDs))
	}

	query := `
		SELECT
			` + prefixColumns("s", storyColumns) + `,
			1 - (e.embedding <=> ` + placeholder(len(args)+1) + `) AS similarity,
			e.embedding <=> ` + placeholder(len(args)+2) + ` AS distance
		FROM story s
		INNER JOIN story_embedding e ON s.id = e.story_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY e.embedding <=> ` + placeholder(len(args)+3) + `
		LIMIT ` + placeholder(len(args)+4)

	args = append(args, vector, vector, vector, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search stories")
	}
	defer rows.Close()

	candidates := []*store.StoryCandidate{}
	for rows.Next() {
		var candidate store.StoryCandidate
		var lastUsed sql.NullTime

		err := rows.Scan(
			&candidate.ID,
			&candidate.BotID,
			&candidate.Title,
			&candidate.Content,
			pq.Array(&candidate.Themes),
			pq.Array(&candidate.Triggers),
			&candidate.EmotionalTone,
			pq.Array(&candidate.ContextHints),
			&candidate.UsedCount,
			&lastUsed,
			&candidate.CreatedTs,
			&candidate.UpdatedTs,
			&candidate.Similarity,
			&candidate.Distance,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan story candidate")
		}
		if lastUsed.Valid {
			candidate.LastUsed = &lastUsed.Time
		}
		candidates = append(candidates, &candidate)
	}
	return candidates, rows.Err()
}

func scanStory(rows *sql.Rows) (*store.Story, error) {
	var story store.Story
	var lastUsed sql.NullTime

	err := rows.Scan(
		&story.ID,
		&story.BotID,
		&story.Title,
		&story.Content,
		pq.Array(&story.Themes),
		pq.Array(&story.Triggers),
		&story.EmotionalTone,
		pq.Array(&story.ContextHints),
		&story.UsedCount,
		&lastUsed,
		&story.CreatedTs,
		&story.UpdatedTs,
	)
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		story.LastUsed = &lastUsed.Time
	}
	return &story, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
