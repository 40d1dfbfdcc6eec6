package repositories

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func TestPodcastRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")

	t.Run("Upsert", func(t *testing.T) {
		t.Run("InsertError", func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectExec(`INSERT OR IGNORE INTO podcasts`).WillReturnError(diskFull)

			_, err := NewPodcastRepository(db).Upsert(ctx, newPodcast(1, "radiolab"))
			assert.ErrorIs(t, err, diskFull)
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run("ConflictRowVanished", func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectExec(`INSERT OR IGNORE INTO podcasts`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT id, subscribed FROM podcasts WHERE collection_id = \?`).
				WithArgs(int64(1)).
				WillReturnRows(sqlmock.NewRows([]string{"id", "subscribed"}))

			id, err := NewPodcastRepository(db).Upsert(ctx, newPodcast(1, "radiolab"))
			assert.NoError(t, err)
			assert.Zero(t, id)
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run("UpdateError", func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectExec(`INSERT OR IGNORE INTO podcasts`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT id, subscribed FROM podcasts WHERE collection_id = \?`).
				WillReturnRows(sqlmock.NewRows([]string{"id", "subscribed"}).AddRow(5, true))
			mock.ExpectExec(`UPDATE podcasts`).WillReturnError(diskFull)

			_, err := NewPodcastRepository(db).Upsert(ctx, newPodcast(1, "radiolab"))
			assert.ErrorIs(t, err, diskFull)
			assert.NoError(t, mock.ExpectationsWereMet())
		})

		t.Run("UpdateKeepsStoredFlag", func(t *testing.T) {
			db, mock := setupMockDB(t)
			mock.ExpectExec(`INSERT OR IGNORE INTO podcasts`).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(`SELECT id, subscribed FROM podcasts WHERE collection_id = \?`).
				WillReturnRows(sqlmock.NewRows([]string{"id", "subscribed"}).AddRow(5, true))
			mock.ExpectExec(`UPDATE podcasts`).
				WithArgs(int64(1), sqlmock.AnyArg(), "radiolab", false, "", "", sqlmock.AnyArg(), sqlmock.AnyArg(), "", true, nil, int64(5)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			p := newPodcast(1, "radiolab")
			id, err := NewPodcastRepository(db).Upsert(ctx, p)
			require.NoError(t, err)
			assert.Equal(t, int64(5), id)
			assert.True(t, p.Subscribed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	})

	t.Run("ListByCollectionIDs", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT .* FROM podcasts WHERE collection_id IN \(\?,\?\)`).WillReturnError(diskFull)

		_, err := NewPodcastRepository(db).ListByCollectionIDs(ctx, []int64{1, 2})
		assert.ErrorIs(t, err, diskFull)
	})

	t.Run("Get", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT .* FROM podcasts WHERE id = \?`).WillReturnError(diskFull)

		_, err := NewPodcastRepository(db).Get(ctx, 1)
		assert.ErrorIs(t, err, diskFull)
		assert.NotErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("ToggleSubscription", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`UPDATE podcasts SET subscribed = NOT subscribed`).WillReturnError(diskFull)

		_, err := NewPodcastRepository(db).ToggleSubscription(ctx, 1)
		assert.ErrorIs(t, err, diskFull)
	})
}

func TestEpisodeRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	diskFull := errors.New("disk full")

	t.Run("InsertAll", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`INSERT OR REPLACE INTO episodes`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT OR REPLACE INTO episodes`).WillReturnError(diskFull)

		err := NewEpisodeRepository(db).InsertAll(ctx, []models.Episode{{GUID: "g1"}, {GUID: "g2"}})
		assert.ErrorIs(t, err, diskFull)
		assert.Contains(t, err.Error(), "g2")
	})

	t.Run("Page", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT .* FROM episodes WHERE podcast_id = \? ORDER BY .* LIMIT 20 OFFSET 40`).WillReturnError(diskFull)

		_, err := NewEpisodeRepository(db).Page(ctx, 1, 40, 20)
		assert.ErrorIs(t, err, diskFull)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Count", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM episodes`).WillReturnError(diskFull)

		_, err := NewEpisodeRepository(db).Count(ctx, 1)
		assert.ErrorIs(t, err, diskFull)
	})
}

func TestSearchResultRepositoryErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectExec(`INSERT INTO search_results`).WillReturnError(errors.New("readonly"))

		err := NewSearchResultRepository(db).Upsert(ctx, &models.SearchResult{Term: "x"})
		assert.Error(t, err)
	})

	t.Run("Get skips malformed ids", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectQuery(`SELECT term, collection_ids, count, updated_at FROM search_results`).
			WithArgs("radiolab").
			WillReturnRows(sqlmock.NewRows([]string{"term", "collection_ids", "count", "updated_at"}).
				AddRow("radiolab", "1,bad,3", 3, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

		got, err := NewSearchResultRepository(db).Get(ctx, "radiolab")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 3}, got.CollectionIDs)
		assert.Equal(t, 3, got.Count)
	})
}

func TestStoreErrors(t *testing.T) {
	t.Run("WithTx begin failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin().WillReturnError(errors.New("cannot begin"))

		store := NewStore(db, shared.NewLogger(io.Discard))
		called := false
		err := store.WithTx(context.Background(), func(*Store) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})

	t.Run("WithTx commit failure", func(t *testing.T) {
		db, mock := setupMockDB(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("cannot commit"))

		store := NewStore(db, shared.NewLogger(io.Discard))
		changes, unsubscribe := store.Subscribe()
		defer unsubscribe()

		err := store.WithTx(context.Background(), func(tx *Store) error {
			tx.touch(TablePodcasts)
			return nil
		})
		assert.Error(t, err)

		select {
		case <-changes:
			t.Error("failed commit must not notify")
		default:
		}
	})
}
