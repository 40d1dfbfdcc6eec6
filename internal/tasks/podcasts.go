package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/services"
	"github.com/desertthunder/podx/internal/shared"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultFeedTTL     = 6 * time.Hour
	DefaultPageSize    = 20
	DefaultSyncWorkers = 4
)

// EngineOpts configures a [PodcastEngine].
type EngineOpts struct {
	Store     *repositories.Store
	Directory services.Directory
	Feeds     services.FeedSource
	// FeedTTL is how long a synced feed is served without revalidating.
	FeedTTL     time.Duration
	PageSize    int
	SyncWorkers int
	Logger      *log.Logger
}

// PodcastEngine exposes podcast data as locally cached, remotely revalidated streams.
type PodcastEngine struct {
	store       *repositories.Store
	directory   services.Directory
	feeds       services.FeedSource
	feedTTL     time.Duration
	pageSize    int
	syncWorkers int
	now         func() time.Time
	logger      *log.Logger
}

// SyncResult summarizes [PodcastEngine.SyncSubscribed].
type SyncResult struct {
	Total  int
	Synced int
	Failed []FeedError
}

// FeedError records a feed that could not be synced.
type FeedError struct {
	Podcast models.Podcast
	Err     error
}

// NewPodcastEngine creates a PodcastEngine with defaults applied to unset options.
func NewPodcastEngine(opts EngineOpts) *PodcastEngine {
	if opts.FeedTTL <= 0 {
		opts.FeedTTL = DefaultFeedTTL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.SyncWorkers <= 0 {
		opts.SyncWorkers = DefaultSyncWorkers
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &PodcastEngine{
		store:       opts.Store,
		directory:   opts.Directory,
		feeds:       opts.Feeds,
		feedTTL:     opts.FeedTTL,
		pageSize:    opts.PageSize,
		syncWorkers: opts.SyncWorkers,
		now:         time.Now,
		logger:      shared.WithLogger(opts.Logger, "component", "engine"),
	}
}

// SearchPodcasts streams the podcasts matching term in directory order.
//
// Cached results are emitted with [Loading] while the directory is queried; every search
// revalidates. A blank term yields a single [Error] snapshot.
func (e *PodcastEngine) SearchPodcasts(ctx context.Context, term string) <-chan Snapshot[[]models.Podcast] {
	term = shared.NormalizeTerm(term)
	if term == "" {
		return failed[[]models.Podcast](fmt.Errorf("%w: search term is empty", shared.ErrInvalidInput))
	}

	return Resource[[]models.Podcast, *services.SearchResponse]{
		Local: func(ctx context.Context) (<-chan []models.Podcast, func() error) {
			return repositories.WatchErr(ctx, e.store, func(ctx context.Context) ([]models.Podcast, error) {
				return e.cachedSearch(ctx, term)
			}, repositories.TableSearchResults, repositories.TablePodcasts)
		},
		Fetch: func(ctx context.Context) (*services.SearchResponse, error) {
			return e.directory.Search(ctx, term)
		},
		Save: func(ctx context.Context, resp *services.SearchResponse) error {
			return e.saveSearch(ctx, term, resp)
		},
		ShouldFetch: func([]models.Podcast) bool { return true },
	}.Stream(ctx)
}

func (e *PodcastEngine) cachedSearch(ctx context.Context, term string) ([]models.Podcast, error) {
	sr, err := e.store.SearchResults.Get(ctx, term)
	if errors.Is(err, shared.ErrNotFound) {
		return []models.Podcast{}, nil
	}
	if err != nil {
		return nil, err
	}
	return e.store.Podcasts.ListByCollectionIDs(ctx, sr.CollectionIDs)
}

// saveSearch stores every result with a feed URL and caches their ids under term along with
// the directory's own result count.
func (e *PodcastEngine) saveSearch(ctx context.Context, term string, resp *services.SearchResponse) error {
	listings := resp.Podcasts()
	var ids []int64

	err := e.store.WithTx(ctx, func(tx *repositories.Store) error {
		// Upsert writes ids back into its argument, so every attempt starts from fresh copies.
		podcasts := slices.Clone(listings)
		ids = make([]int64, 0, len(podcasts))
		for i := range podcasts {
			if _, err := tx.Podcasts.UpsertListing(ctx, &podcasts[i]); err != nil {
				return fmt.Errorf("failed to save podcast %d: %w", podcasts[i].CollectionID, err)
			}
			ids = append(ids, podcasts[i].CollectionID)
		}
		return tx.SearchResults.Upsert(ctx, &models.SearchResult{
			Term:          term,
			CollectionIDs: ids,
			Count:         resp.ResultCount,
			UpdatedAt:     e.now().UTC(),
		})
	})
	if err != nil {
		return err
	}

	e.logger.Debug("search saved", "term", term, "results", resp.ResultCount, "stored", len(ids))
	return nil
}

// Subscribed streams the subscribed podcasts.
func (e *PodcastEngine) Subscribed(ctx context.Context) <-chan []models.Podcast {
	return repositories.Watch(ctx, e.store, func(ctx context.Context) ([]models.Podcast, error) {
		return e.store.Podcasts.ListSubscribed(ctx, true)
	}, repositories.TablePodcasts)
}

// RequirePodcast streams the podcast stored for feedURL, or nil while there is none.
func (e *PodcastEngine) RequirePodcast(ctx context.Context, feedURL string) <-chan *models.Podcast {
	return repositories.Watch(ctx, e.store, func(ctx context.Context) (*models.Podcast, error) {
		p, err := e.store.Podcasts.GetByFeedURL(ctx, feedURL)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return p, err
	}, repositories.TablePodcasts)
}

// PodcastFeed streams a podcast with all of its episodes, revalidating the feed when it has
// never been synced, has no episodes, or was last synced more than the feed TTL ago.
func (e *PodcastEngine) PodcastFeed(ctx context.Context, feedURL string) <-chan Snapshot[*models.PodcastFeed] {
	return Resource[*models.PodcastFeed, *services.Feed]{
		Local: func(ctx context.Context) (<-chan *models.PodcastFeed, func() error) {
			return repositories.WatchErr(ctx, e.store, func(ctx context.Context) (*models.PodcastFeed, error) {
				return e.readFeed(ctx, feedURL)
			}, repositories.TablePodcasts, repositories.TableEpisodes)
		},
		Fetch: func(ctx context.Context) (*services.Feed, error) {
			return e.feeds.Fetch(ctx, feedURL)
		},
		Save: func(ctx context.Context, feed *services.Feed) error {
			_, err := persistFeed(ctx, e.store, feed, e.now())
			return err
		},
		ShouldFetch: e.feedStale,
	}.Stream(ctx)
}

func (e *PodcastEngine) readFeed(ctx context.Context, feedURL string) (*models.PodcastFeed, error) {
	pf := &models.PodcastFeed{Episodes: []models.Episode{}}

	p, err := e.store.Podcasts.GetByFeedURL(ctx, feedURL)
	if errors.Is(err, shared.ErrNotFound) {
		return pf, nil
	}
	if err != nil {
		return nil, err
	}
	pf.Podcast = p

	if pf.Episodes, err = e.store.Episodes.ListByPodcast(ctx, p.ID); err != nil {
		return nil, err
	}
	return pf, nil
}

func (e *PodcastEngine) feedStale(pf *models.PodcastFeed) bool {
	if pf == nil || pf.Podcast == nil || len(pf.Episodes) == 0 {
		return true
	}
	synced := pf.Podcast.LastSyncedAt
	return synced == nil || e.now().Sub(*synced) > e.feedTTL
}

// EpisodesPaged returns a pager over the episodes of feedURL backed by a fresh mediator.
func (e *PodcastEngine) EpisodesPaged(feedURL string) *EpisodePager {
	mediator := NewEpisodesFeedMediator(e.store, e.feeds, feedURL, e.logger)
	mediator.now = e.now
	return NewEpisodePager(e.store, mediator, feedURL, e.pageSize)
}

// ToggleSubscription flips the subscription flag of podcast id and returns the new value.
func (e *PodcastEngine) ToggleSubscription(ctx context.Context, id int64) (bool, error) {
	subscribed, err := e.store.Podcasts.ToggleSubscription(ctx, id)
	if err != nil {
		return false, err
	}
	e.logger.Info("subscription toggled", "podcast", id, "subscribed", subscribed)
	return subscribed, nil
}

// DeletePodcast removes podcast id and its episodes.
func (e *PodcastEngine) DeletePodcast(ctx context.Context, id int64) error {
	if err := e.store.Podcasts.Delete(ctx, id); err != nil {
		return err
	}
	e.logger.Info("podcast deleted", "podcast", id)
	return nil
}

// Episode returns the stored episode with guid.
func (e *PodcastEngine) Episode(ctx context.Context, guid string) (*models.Episode, error) {
	return e.store.Episodes.Get(ctx, strings.TrimSpace(guid))
}

// SyncSubscribed refreshes every subscribed feed, at most SyncWorkers at a time. Failed feeds
// are collected in the result; only listing the subscriptions or cancellation fails the call.
func (e *PodcastEngine) SyncSubscribed(ctx context.Context, progress chan<- ProgressUpdate) (*SyncResult, error) {
	podcasts, err := e.store.Podcasts.ListSubscribed(ctx, true)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Total: len(podcasts)}
	sendProgress(progress, listSubscribedUpdate(result.Total))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.syncWorkers)

	for _, p := range podcasts {
		g.Go(func() error {
			err := e.syncFeed(gctx, p.FeedURL)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			step := result.Synced + len(result.Failed) + 1
			if err != nil {
				result.Failed = append(result.Failed, FeedError{Podcast: p, Err: err})
				sendProgress(progress, feedFailedUpdate(step, result.Total, p, err))
				return nil
			}
			result.Synced++
			sendProgress(progress, feedSyncedUpdate(step, result.Total, p))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	sendProgress(progress, syncCompleteUpdate(result))
	e.logger.Info("subscriptions synced", "total", result.Total, "synced", result.Synced, "failed", len(result.Failed))
	return result, nil
}

func (e *PodcastEngine) syncFeed(ctx context.Context, feedURL string) error {
	feed, err := e.feeds.Fetch(ctx, feedURL)
	if err != nil {
		return err
	}
	_, err = persistFeed(ctx, e.store, feed, e.now())
	return err
}

// persistFeed stores feed's description and episodes under the podcast registered for its URL,
// creating that podcast when none exists, and marks it synced at now. All writes share one
// transaction. It returns the podcast id.
func persistFeed(ctx context.Context, store *repositories.Store, feed *services.Feed, now time.Time) (int64, error) {
	var id int64
	err := store.WithTx(ctx, func(tx *repositories.Store) error {
		p, err := tx.Podcasts.GetByFeedURL(ctx, feed.URL)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			p = &models.Podcast{
				FeedURL:     feed.URL,
				FeedTitle:   feed.Title,
				ImageURL:    feed.Image,
				ImageURL600: feed.Image,
				ReleaseDate: feed.LastBuildDate,
			}
		case err != nil:
			return err
		}

		candidate := *p
		candidate.FeedDescription = feed.Description
		synced := now.UTC()
		candidate.LastSyncedAt = &synced

		if id, err = tx.Podcasts.Upsert(ctx, &candidate); err != nil {
			return fmt.Errorf("failed to save podcast: %w", err)
		}
		if id == 0 {
			return fmt.Errorf("%w: podcast for %s disappeared during sync", shared.ErrConstraint, feed.URL)
		}

		if err := tx.Episodes.InsertAll(ctx, feed.EpisodeModels(id)); err != nil {
			return fmt.Errorf("failed to save episodes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Searcher runs one search at a time; starting a search cancels the previous one.
type Searcher struct {
	engine *PodcastEngine

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSearcher creates a Searcher over engine.
func NewSearcher(engine *PodcastEngine) *Searcher {
	return &Searcher{engine: engine}
}

// Search cancels any running search and starts one for query. A blank query only cancels and
// returns a closed channel.
func (s *Searcher) Search(ctx context.Context, query string) <-chan Snapshot[[]models.Podcast] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if shared.NormalizeTerm(query) == "" {
		out := make(chan Snapshot[[]models.Podcast])
		close(out)
		return out
	}

	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return s.engine.SearchPodcasts(sctx, query)
}

// Stop cancels the running search, if any.
func (s *Searcher) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func failed[T any](err error) <-chan Snapshot[T] {
	out := make(chan Snapshot[T], 1)
	out <- Snapshot[T]{Status: Error, Err: err}
	close(out)
	return out
}
