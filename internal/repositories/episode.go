package repositories

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/desertthunder/podx/internal/models"
	"github.com/jmoiron/sqlx"
)

var episodeColumns = []string{
	"guid",
	"podcast_id",
	"title",
	"description",
	"media_url",
	"release_date",
	"duration",
	"published_at",
}

// newest first; undated episodes last in insertion order
var episodeOrder = []string{"published_at IS NULL", "published_at DESC", "rowid"}

// EpisodeRepository persists [models.Episode] rows. Episodes are never edited in place:
// each sync replaces them by guid.
type EpisodeRepository struct {
	db    sqlx.ExtContext
	touch func(table string)
}

// NewEpisodeRepository creates an EpisodeRepository over db without change notifications.
func NewEpisodeRepository(db sqlx.ExtContext) *EpisodeRepository {
	return &EpisodeRepository{db: db, touch: func(string) {}}
}

// InsertAll inserts episodes, replacing any stored row with the same guid.
func (r *EpisodeRepository) InsertAll(ctx context.Context, episodes []models.Episode) error {
	if len(episodes) == 0 {
		return nil
	}

	query := `
		INSERT OR REPLACE INTO episodes (guid, podcast_id, title, description, media_url, release_date, duration, published_at)
		VALUES (:guid, :podcast_id, :title, :description, :media_url, :release_date, :duration, :published_at)
	`
	for i := range episodes {
		if err := episodes[i].Validate(); err != nil {
			return fmt.Errorf("validation failed for episode %d: %w", i, err)
		}
		if _, err := sqlx.NamedExecContext(ctx, r.db, query, &episodes[i]); err != nil {
			return fmt.Errorf("failed to insert episode %s: %w", episodes[i].GUID, err)
		}
	}

	r.touch(TableEpisodes)
	return nil
}

// Get retrieves an episode by guid.
func (r *EpisodeRepository) Get(ctx context.Context, guid string) (*models.Episode, error) {
	query, args, err := sq.Select(episodeColumns...).From(TableEpisodes).Where(sq.Eq{"guid": guid}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var e models.Episode
	if err := sqlx.GetContext(ctx, r.db, &e, query, args...); err != nil {
		return nil, notFound(err, "episode %s", guid)
	}
	return &e, nil
}

// ListByPodcast returns all episodes of a podcast, newest first.
func (r *EpisodeRepository) ListByPodcast(ctx context.Context, podcastID int64) ([]models.Episode, error) {
	return r.Page(ctx, podcastID, 0, 0)
}

// Page returns up to limit episodes of a podcast starting at offset, newest first.
// A limit of 0 returns everything from offset.
func (r *EpisodeRepository) Page(ctx context.Context, podcastID int64, offset, limit int) ([]models.Episode, error) {
	builder := sq.Select(episodeColumns...).
		From(TableEpisodes).
		Where(sq.Eq{"podcast_id": podcastID}).
		OrderBy(episodeOrder...)
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		if limit <= 0 {
			builder = builder.Limit(uint64(1 << 62))
		}
		builder = builder.Offset(uint64(offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	episodes := []models.Episode{}
	if err := sqlx.SelectContext(ctx, r.db, &episodes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	return episodes, nil
}

// Count returns the number of episodes stored for a podcast.
func (r *EpisodeRepository) Count(ctx context.Context, podcastID int64) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, "SELECT COUNT(*) FROM episodes WHERE podcast_id = ?", podcastID); err != nil {
		return 0, fmt.Errorf("failed to count episodes: %w", err)
	}
	return count, nil
}
