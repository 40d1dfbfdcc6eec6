package tasks

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTypeAndState(t *testing.T) {
	assert.Equal(t, "refresh", Refresh.String())
	assert.Equal(t, "prepend", Prepend.String())
	assert.Equal(t, "append", Append.String())
	assert.Equal(t, "", LoadType(7).String())

	assert.Equal(t, "initial", MediatorInitial.String())
	assert.Equal(t, "refresh_in_flight", RefreshInFlight.String())
	assert.Equal(t, "refresh_success", RefreshSuccessTerminal.String())
	assert.Equal(t, "refresh_error", RefreshError.String())
}

func TestEpisodesFeedMediator(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)

	seedRadiolab := func(t *testing.T) (*fakeFeeds, models.Podcast, *EpisodesFeedMediator, func() int) {
		t.Helper()
		store := setupTestStore(t)
		feeds := newFakeFeeds()
		p := seedPodcast(t, store, models.Podcast{
			CollectionID:    1,
			FeedURL:         feedURL("radiolab"),
			FeedTitle:       "Radiolab",
			FeedDescription: "Old",
			Subscribed:      true,
		})
		m := NewEpisodesFeedMediator(store, feeds, p.FeedURL, logger)
		count := func() int {
			n, err := store.Episodes.Count(ctx, p.ID)
			require.NoError(t, err)
			return n
		}
		return feeds, p, m, count
	}

	t.Run("refresh stores description and episodes", func(t *testing.T) {
		feeds, p, m, count := seedRadiolab(t)
		feeds.Set(testFeed("radiolab", "New desc", "Episode", 2))
		assert.Equal(t, MediatorInitial, m.State())

		res := m.Load(ctx, Refresh, PagingState{})
		require.NoError(t, res.Err)
		assert.True(t, res.EndOfPaginationReached)
		assert.Equal(t, RefreshSuccessTerminal, m.State())
		assert.Equal(t, 2, count())

		stored, err := m.store.Podcasts.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "New desc", stored.FeedDescription)
		assert.True(t, stored.Subscribed)
		assert.NotNil(t, stored.LastSyncedAt)
	})

	t.Run("refresh clears the description when the feed has none", func(t *testing.T) {
		feeds, p, m, _ := seedRadiolab(t)
		feeds.Set(testFeed("radiolab", "", "Episode", 1))

		require.NoError(t, m.Load(ctx, Refresh, PagingState{}).Err)

		stored, err := m.store.Podcasts.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.FeedDescription)
		assert.True(t, stored.Subscribed)
		assert.NotNil(t, stored.LastSyncedAt)
	})

	t.Run("append and prepend after refresh end pagination without fetching", func(t *testing.T) {
		feeds, p, m, _ := seedRadiolab(t)
		feeds.Set(testFeed("radiolab", "New desc", "Episode", 2))

		require.NoError(t, m.Load(ctx, Refresh, PagingState{}).Err)

		for _, lt := range []LoadType{Append, Prepend} {
			res := m.Load(ctx, lt, PagingState{})
			assert.NoError(t, res.Err)
			assert.True(t, res.EndOfPaginationReached, lt.String())
		}
		assert.Equal(t, 1, feeds.Calls(p.FeedURL))
	})

	t.Run("append with loaded items ends pagination", func(t *testing.T) {
		feeds, p, m, _ := seedRadiolab(t)

		res := m.Load(ctx, Append, PagingState{Loaded: 5})
		assert.NoError(t, res.Err)
		assert.True(t, res.EndOfPaginationReached)
		assert.Zero(t, feeds.Calls(p.FeedURL))
		assert.Equal(t, MediatorInitial, m.State())
	})

	t.Run("append with nothing loaded fetches", func(t *testing.T) {
		feeds, p, m, count := seedRadiolab(t)
		feeds.Set(testFeed("radiolab", "New desc", "Episode", 3))

		res := m.Load(ctx, Append, PagingState{})
		require.NoError(t, res.Err)
		assert.True(t, res.EndOfPaginationReached)
		assert.Equal(t, 1, feeds.Calls(p.FeedURL))
		assert.Equal(t, 3, count())
	})

	t.Run("transport error leaves storage untouched", func(t *testing.T) {
		feeds, p, m, count := seedRadiolab(t)
		feeds.Fail(p.FeedURL, fmt.Errorf("%w: feed error: status 503", shared.ErrTransport))

		res := m.Load(ctx, Refresh, PagingState{})
		assert.ErrorIs(t, res.Err, shared.ErrTransport)
		assert.False(t, res.EndOfPaginationReached)
		assert.Equal(t, RefreshError, m.State())
		assert.Zero(t, count())

		stored, err := m.store.Podcasts.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Old", stored.FeedDescription)
		assert.Nil(t, stored.LastSyncedAt)
		assert.True(t, stored.Subscribed)
	})

	t.Run("refetched episodes replace by guid", func(t *testing.T) {
		feeds, p, m, count := seedRadiolab(t)
		feeds.Set(testFeed("radiolab", "desc", "Episode", 2))
		require.NoError(t, m.Load(ctx, Refresh, PagingState{}).Err)

		feeds.Set(testFeed("radiolab", "desc", "Updated", 2))
		require.NoError(t, m.Load(ctx, Refresh, PagingState{}).Err)

		assert.Equal(t, 2, count())
		episodes, err := m.store.Episodes.ListByPodcast(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, episodes, 2)
		assert.Equal(t, "Updated 1", episodes[0].Title)
		assert.Equal(t, "Updated 2", episodes[1].Title)
	})

	t.Run("refresh creates a podcast for an unknown feed", func(t *testing.T) {
		store := setupTestStore(t)
		feeds := newFakeFeeds()
		feeds.Set(testFeed("newcast", "Fresh", "Episode", 1))
		m := NewEpisodesFeedMediator(store, feeds, feedURL("newcast"), logger)

		require.NoError(t, m.Load(ctx, Refresh, PagingState{}).Err)

		p, err := store.Podcasts.GetByFeedURL(ctx, feedURL("newcast"))
		require.NoError(t, err)
		assert.Equal(t, "newcast", p.FeedTitle)
		assert.Equal(t, "Fresh", p.FeedDescription)
		assert.False(t, p.Subscribed)
		assert.Zero(t, p.CollectionID)
	})
}

func TestEpisodePager(t *testing.T) {
	ctx := context.Background()

	t.Run("pages through stored episodes after one fetch", func(t *testing.T) {
		engine, _, _, feeds := setupTestEngine(t)
		feeds.Set(testFeed("big", "desc", "Episode", 45))
		pager := engine.EpisodesPaged(feedURL("big"))

		first := pager.Next(ctx)
		require.NoError(t, first.Err)
		require.Len(t, first.Items, 20)
		assert.Equal(t, "Episode 1", first.Items[0].Title)
		assert.Equal(t, "Episode 20", first.Items[19].Title)
		assert.False(t, first.EndOfPaginationReached)

		second := pager.Next(ctx)
		require.Len(t, second.Items, 20)
		assert.Equal(t, "Episode 21", second.Items[0].Title)
		assert.False(t, second.EndOfPaginationReached)

		third := pager.Next(ctx)
		require.NoError(t, third.Err)
		assert.Len(t, third.Items, 5)
		assert.True(t, third.EndOfPaginationReached)

		after := pager.Next(ctx)
		assert.Empty(t, after.Items)
		assert.True(t, after.EndOfPaginationReached)

		assert.Equal(t, 1, feeds.Calls(feedURL("big")))
	})

	t.Run("refresh restarts from the first page", func(t *testing.T) {
		engine, _, _, feeds := setupTestEngine(t)
		feeds.Set(testFeed("small", "desc", "Episode", 3))
		pager := engine.EpisodesPaged(feedURL("small"))

		page := pager.Next(ctx)
		require.Len(t, page.Items, 3)
		assert.True(t, page.EndOfPaginationReached)

		feeds.Set(testFeed("small", "desc", "Episode", 4))
		page = pager.Refresh(ctx)
		require.NoError(t, page.Err)
		assert.Len(t, page.Items, 4)
		assert.Equal(t, 2, feeds.Calls(feedURL("small")))
	})

	t.Run("failed refresh reports the error once", func(t *testing.T) {
		engine, _, _, feeds := setupTestEngine(t)
		feeds.Fail(feedURL("down"), fmt.Errorf("%w: request failed", shared.ErrTransport))
		pager := engine.EpisodesPaged(feedURL("down"))

		page := pager.Next(ctx)
		assert.ErrorIs(t, page.Err, shared.ErrTransport)
		assert.Empty(t, page.Items)
		assert.False(t, page.EndOfPaginationReached)
		assert.Equal(t, 1, feeds.Calls(feedURL("down")))
	})

	t.Run("failed refresh still serves stored episodes", func(t *testing.T) {
		engine, store, _, feeds := setupTestEngine(t)
		feeds.Set(testFeed("cached", "desc", "Episode", 2))
		_, err := persistFeed(ctx, store, testFeed("cached", "desc", "Episode", 2), engine.now())
		require.NoError(t, err)
		feeds.Fail(feedURL("cached"), fmt.Errorf("%w: request failed", shared.ErrTransport))

		page := engine.EpisodesPaged(feedURL("cached")).Next(ctx)
		assert.ErrorIs(t, page.Err, shared.ErrTransport)
		assert.Len(t, page.Items, 2)
	})
}
