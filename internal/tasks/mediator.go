package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/services"
	"github.com/desertthunder/podx/internal/shared"
)

// LoadType says which end of the paged list a load is for.
type LoadType int

const (
	Refresh LoadType = iota
	Prepend
	Append
)

func (l LoadType) String() string {
	switch l {
	case Refresh:
		return "refresh"
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	default:
		return ""
	}
}

// MediatorState tracks the single refresh an [EpisodesFeedMediator] performs.
type MediatorState int

const (
	MediatorInitial MediatorState = iota
	RefreshInFlight
	RefreshSuccessTerminal
	RefreshError
)

func (s MediatorState) String() string {
	switch s {
	case MediatorInitial:
		return "initial"
	case RefreshInFlight:
		return "refresh_in_flight"
	case RefreshSuccessTerminal:
		return "refresh_success"
	case RefreshError:
		return "refresh_error"
	default:
		return ""
	}
}

// PagingState describes what the pager currently holds.
type PagingState struct {
	Loaded int // Items already loaded
}

// MediatorResult is the outcome of [EpisodesFeedMediator.Load].
type MediatorResult struct {
	EndOfPaginationReached bool
	Err                    error
}

// EpisodesFeedMediator fills the episode table for one feed. A feed is fetched whole, so one
// successful refresh completes pagination in both directions.
type EpisodesFeedMediator struct {
	store   *repositories.Store
	feeds   services.FeedSource
	feedURL string
	now     func() time.Time
	logger  *log.Logger

	mu    sync.Mutex
	state MediatorState
}

// NewEpisodesFeedMediator creates a mediator for feedURL.
func NewEpisodesFeedMediator(store *repositories.Store, feeds services.FeedSource, feedURL string, logger *log.Logger) *EpisodesFeedMediator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &EpisodesFeedMediator{
		store:   store,
		feeds:   feeds,
		feedURL: feedURL,
		now:     time.Now,
		logger:  shared.WithLogger(logger, "component", "mediator", "feed", feedURL),
	}
}

// State returns the mediator's current state.
func (m *EpisodesFeedMediator) State() MediatorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Load fetches the feed and stores its episodes.
//
// Prepend and Append are no-ops reporting the end of pagination once a refresh has succeeded
// or the pager already holds items; otherwise they load like Refresh. On error the state moves
// to [RefreshError] and stored data is left as it was.
func (m *EpisodesFeedMediator) Load(ctx context.Context, loadType LoadType, state PagingState) MediatorResult {
	m.mu.Lock()
	if loadType != Refresh && (state.Loaded > 0 || m.state == RefreshSuccessTerminal) {
		m.mu.Unlock()
		return MediatorResult{EndOfPaginationReached: true}
	}
	m.state = RefreshInFlight
	m.mu.Unlock()

	m.logger.Debug("loading feed", "load", loadType)

	err := m.refresh(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = RefreshError
		if ctx.Err() == nil {
			m.logger.Warn("feed refresh failed", "error", err)
		}
		return MediatorResult{Err: err}
	}
	m.state = RefreshSuccessTerminal
	return MediatorResult{EndOfPaginationReached: true}
}

func (m *EpisodesFeedMediator) refresh(ctx context.Context) error {
	feed, err := m.feeds.Fetch(ctx, m.feedURL)
	if err != nil {
		return err
	}
	_, err = persistFeed(ctx, m.store, feed, m.now())
	return err
}
