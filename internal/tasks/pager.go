package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/shared"
)

// Page is one batch of episodes read from local storage.
type Page struct {
	Items                  []models.Episode
	EndOfPaginationReached bool
	// Err is the mediator's error, if any. Items are still the stored episodes.
	Err error
}

// EpisodePager reads a feed's stored episodes page by page, newest first, asking its mediator
// to load the feed before the first page and whenever it runs out of stored episodes.
type EpisodePager struct {
	store    *repositories.Store
	mediator *EpisodesFeedMediator
	feedURL  string
	pageSize int

	mu        sync.Mutex
	offset    int
	refreshed bool
	end       bool
}

// NewEpisodePager creates a pager over the episodes of feedURL.
func NewEpisodePager(store *repositories.Store, mediator *EpisodesFeedMediator, feedURL string, pageSize int) *EpisodePager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &EpisodePager{
		store:    store,
		mediator: mediator,
		feedURL:  feedURL,
		pageSize: pageSize,
	}
}

// Next returns the next page. After the end of pagination it returns empty pages. A page whose
// refresh failed never reports the end, so the following call loads again.
func (p *EpisodePager) Next(ctx context.Context) Page {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.end {
		return Page{Items: []models.Episode{}, EndOfPaginationReached: true}
	}

	var page Page
	if !p.refreshed {
		p.refreshed = true
		if res := p.mediator.Load(ctx, Refresh, PagingState{Loaded: p.offset}); res.Err != nil {
			page.Err = res.Err
		}
	}

	items, err := p.read(ctx)
	if err != nil {
		page.Err = errors.Join(page.Err, err)
		return page
	}
	page.Items = items
	p.offset += len(items)

	if len(items) < p.pageSize && page.Err == nil {
		res := p.mediator.Load(ctx, Append, PagingState{Loaded: p.offset})
		page.Err = res.Err
		p.end = res.EndOfPaginationReached
		page.EndOfPaginationReached = p.end
	}
	return page
}

// Refresh reloads the feed and restarts from the first page.
func (p *EpisodePager) Refresh(ctx context.Context) Page {
	p.mu.Lock()
	p.offset = 0
	p.refreshed = false
	p.end = false
	p.mu.Unlock()

	return p.Next(ctx)
}

func (p *EpisodePager) read(ctx context.Context) ([]models.Episode, error) {
	podcast, err := p.store.Podcasts.GetByFeedURL(ctx, p.feedURL)
	if errors.Is(err, shared.ErrNotFound) {
		return []models.Episode{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.store.Episodes.Page(ctx, podcast.ID, p.offset, p.pageSize)
}
