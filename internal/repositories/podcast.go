package repositories

import (
	"context"
	"fmt"
	"sort"

	sq "github.com/Masterminds/squirrel"
	"github.com/desertthunder/podx/internal/models"
	"github.com/jmoiron/sqlx"
)

var podcastColumns = []string{
	"id",
	"COALESCE(collection_id, 0) AS collection_id",
	"feed_url",
	"feed_title",
	"feed_description",
	"image_url",
	"image_url600",
	"release_date",
	"subscribed",
	"last_synced_at",
}

// PodcastRepository persists [models.Podcast] rows.
//
// Remote data always enters through [PodcastRepository.Upsert], which never lets a sync
// change the subscription flag.
type PodcastRepository struct {
	db    sqlx.ExtContext
	touch func(table string)
}

// NewPodcastRepository creates a PodcastRepository over db without change notifications.
func NewPodcastRepository(db sqlx.ExtContext) *PodcastRepository {
	return &PodcastRepository{db: db, touch: func(string) {}}
}

// Upsert inserts p, or overwrites the server-owned fields of the row it conflicts with
// while keeping that row's subscription flag.
//
// The conflicting row is found by p.ID, then by p.CollectionID. If it disappeared between the
// insert and the lookup the write is dropped and 0 is returned with a nil error. The stored
// description is always replaced, even by an empty one. A nil LastSyncedAt or a zero
// CollectionID on p keeps the stored value. On success p.ID and p.Subscribed reflect the
// stored row.
func (r *PodcastRepository) Upsert(ctx context.Context, p *models.Podcast) (int64, error) {
	return r.upsert(ctx, p, false)
}

// UpsertListing is [PodcastRepository.Upsert] for directory listings, which carry no feed
// description: an empty description on p keeps the stored one.
func (r *PodcastRepository) UpsertListing(ctx context.Context, p *models.Podcast) (int64, error) {
	return r.upsert(ctx, p, true)
}

func (r *PodcastRepository) upsert(ctx context.Context, p *models.Podcast, keepDescription bool) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	insert := `
		INSERT OR IGNORE INTO podcasts
			(id, collection_id, feed_url, feed_title, feed_description, image_url, image_url600, release_date, subscribed, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, insert,
		nullableID(p.ID),
		nullableID(p.CollectionID),
		p.FeedURL,
		p.FeedTitle,
		p.FeedDescription,
		p.ImageURL,
		p.ImageURL600,
		p.ReleaseDate,
		p.Subscribed,
		p.LastSyncedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert podcast: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		id, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to get podcast id: %w", err)
		}
		p.ID = id
		r.touch(TablePodcasts)
		return id, nil
	}

	existing, ok, err := r.findConflict(ctx, p)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	update := `
		UPDATE podcasts
		SET collection_id = COALESCE(?, collection_id),
			feed_url = ?,
			feed_title = ?,
			feed_description = CASE WHEN ? AND ? = '' THEN feed_description ELSE ? END,
			image_url = ?,
			image_url600 = ?,
			release_date = ?,
			subscribed = ?,
			last_synced_at = COALESCE(?, last_synced_at)
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, update,
		nullableID(p.CollectionID),
		p.FeedURL,
		p.FeedTitle,
		keepDescription, p.FeedDescription, p.FeedDescription,
		p.ImageURL,
		p.ImageURL600,
		p.ReleaseDate,
		existing.Subscribed,
		p.LastSyncedAt,
		existing.ID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update podcast: %w", err)
	}

	p.ID = existing.ID
	p.Subscribed = existing.Subscribed
	r.touch(TablePodcasts)
	return existing.ID, nil
}

type conflictRow struct {
	ID         int64 `db:"id"`
	Subscribed bool  `db:"subscribed"`
}

func (r *PodcastRepository) findConflict(ctx context.Context, p *models.Podcast) (conflictRow, bool, error) {
	lookups := []struct {
		column string
		value  int64
	}{
		{"id", p.ID},
		{"collection_id", p.CollectionID},
	}

	for _, l := range lookups {
		if l.value == 0 {
			continue
		}
		var rows []conflictRow
		query := "SELECT id, subscribed FROM podcasts WHERE " + l.column + " = ? LIMIT 1"
		if err := sqlx.SelectContext(ctx, r.db, &rows, query, l.value); err != nil {
			return conflictRow{}, false, fmt.Errorf("failed to read existing podcast: %w", err)
		}
		if len(rows) == 1 {
			return rows[0], true, nil
		}
	}
	return conflictRow{}, false, nil
}

// Get retrieves a podcast by its local id.
func (r *PodcastRepository) Get(ctx context.Context, id int64) (*models.Podcast, error) {
	return r.getWhere(ctx, sq.Eq{"id": id}, "podcast %d", id)
}

// GetByFeedURL retrieves the oldest podcast with the given feed URL.
func (r *PodcastRepository) GetByFeedURL(ctx context.Context, feedURL string) (*models.Podcast, error) {
	return r.getWhere(ctx, sq.Eq{"feed_url": feedURL}, "podcast with feed %s", feedURL)
}

// GetByCollectionID retrieves a podcast by its directory collection id.
func (r *PodcastRepository) GetByCollectionID(ctx context.Context, collectionID int64) (*models.Podcast, error) {
	return r.getWhere(ctx, sq.Eq{"collection_id": collectionID}, "podcast with collection id %d", collectionID)
}

func (r *PodcastRepository) getWhere(ctx context.Context, pred sq.Eq, format string, args ...any) (*models.Podcast, error) {
	query, qargs, err := sq.Select(podcastColumns...).From(TablePodcasts).Where(pred).OrderBy("id").Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var p models.Podcast
	if err := sqlx.GetContext(ctx, r.db, &p, query, qargs...); err != nil {
		return nil, notFound(err, format, args...)
	}
	return &p, nil
}

// List returns every stored podcast ordered by title.
func (r *PodcastRepository) List(ctx context.Context) ([]models.Podcast, error) {
	return r.selectWhere(ctx, nil)
}

// ListSubscribed returns the podcasts with the given subscription state ordered by title.
func (r *PodcastRepository) ListSubscribed(ctx context.Context, subscribed bool) ([]models.Podcast, error) {
	return r.selectWhere(ctx, sq.Eq{"subscribed": subscribed})
}

// ListByCollectionIDs returns the podcasts for ids in the order of ids.
// Ids without a stored row are skipped.
func (r *PodcastRepository) ListByCollectionIDs(ctx context.Context, ids []int64) ([]models.Podcast, error) {
	if len(ids) == 0 {
		return []models.Podcast{}, nil
	}

	podcasts, err := r.selectWhere(ctx, sq.Eq{"collection_id": ids})
	if err != nil {
		return nil, err
	}

	ranks := (&models.SearchResult{CollectionIDs: ids}).Ranks()
	sort.SliceStable(podcasts, func(i, j int) bool {
		return ranks[podcasts[i].CollectionID] < ranks[podcasts[j].CollectionID]
	})
	return podcasts, nil
}

func (r *PodcastRepository) selectWhere(ctx context.Context, pred sq.Sqlizer) ([]models.Podcast, error) {
	builder := sq.Select(podcastColumns...).From(TablePodcasts).OrderBy("feed_title COLLATE NOCASE", "id")
	if pred != nil {
		builder = builder.Where(pred)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	podcasts := []models.Podcast{}
	if err := sqlx.SelectContext(ctx, r.db, &podcasts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	return podcasts, nil
}

// ToggleSubscription flips the subscription flag and returns the new value.
func (r *PodcastRepository) ToggleSubscription(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "UPDATE podcasts SET subscribed = NOT subscribed WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to toggle subscription: %w", err)
	}
	if err := requireRow(result, "podcast %d", id); err != nil {
		return false, err
	}
	r.touch(TablePodcasts)

	var subscribed bool
	if err := sqlx.GetContext(ctx, r.db, &subscribed, "SELECT subscribed FROM podcasts WHERE id = ?", id); err != nil {
		return false, notFound(err, "podcast %d", id)
	}
	return subscribed, nil
}

// SetSubscribed sets the subscription flag explicitly.
func (r *PodcastRepository) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	result, err := r.db.ExecContext(ctx, "UPDATE podcasts SET subscribed = ? WHERE id = ?", subscribed, id)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	if err := requireRow(result, "podcast %d", id); err != nil {
		return err
	}
	r.touch(TablePodcasts)
	return nil
}

// Delete removes a podcast and, through the foreign key, its episodes.
func (r *PodcastRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM podcasts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete podcast: %w", err)
	}
	if err := requireRow(result, "podcast %d", id); err != nil {
		return err
	}
	r.touch(TablePodcasts)
	r.touch(TableEpisodes)
	return nil
}
