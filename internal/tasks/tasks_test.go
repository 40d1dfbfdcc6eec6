package tasks

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/services"
	"github.com/desertthunder/podx/internal/shared"
)

// fakeDirectory serves canned search responses. Terms listed in block wait for cancellation.
type fakeDirectory struct {
	mu        sync.Mutex
	responses map[string]*services.SearchResponse
	block     map[string]bool
	err       error
	calls     []string
}

func (f *fakeDirectory) Search(ctx context.Context, term string) (*services.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, term)
	resp, blocked, err := f.responses[term], f.block[term], f.err
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &services.SearchResponse{Results: []services.DirectoryPodcast{}}, nil
	}
	return resp, nil
}

func (f *fakeDirectory) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeFeeds serves canned feeds by URL and counts fetches.
type fakeFeeds struct {
	mu    sync.Mutex
	feeds map[string]*services.Feed
	errs  map[string]error
	calls map[string]int
}

func newFakeFeeds() *fakeFeeds {
	return &fakeFeeds{
		feeds: make(map[string]*services.Feed),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFeeds) Fetch(ctx context.Context, feedURL string) (*services.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[feedURL]++

	if err := f.errs[feedURL]; err != nil {
		return nil, err
	}
	feed, ok := f.feeds[feedURL]
	if !ok {
		return nil, fmt.Errorf("%w: feed error: status 404", shared.ErrTransport)
	}
	return feed, nil
}

func (f *fakeFeeds) Set(feed *services.Feed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds[feed.URL] = feed
}

func (f *fakeFeeds) Fail(feedURL string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[feedURL] = err
}

func (f *fakeFeeds) Calls(feedURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[feedURL]
}

// setupTestStore creates a file-backed SQLite database with migrations applied
func setupTestStore(t *testing.T) *repositories.Store {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return repositories.NewStore(db, shared.NewLogger(io.Discard))
}

func setupTestEngine(t *testing.T) (*PodcastEngine, *repositories.Store, *fakeDirectory, *fakeFeeds) {
	t.Helper()

	store := setupTestStore(t)
	directory := &fakeDirectory{responses: make(map[string]*services.SearchResponse), block: make(map[string]bool)}
	feeds := newFakeFeeds()
	engine := NewPodcastEngine(EngineOpts{
		Store:     store,
		Directory: directory,
		Feeds:     feeds,
		Logger:    shared.NewLogger(io.Discard),
	})
	return engine, store, directory, feeds
}

func feedURL(name string) string {
	return "https://example.com/" + name + ".xml"
}

func directoryPodcast(id int64, name string) services.DirectoryPodcast {
	return services.DirectoryPodcast{
		CollectionID:   id,
		CollectionName: name,
		FeedURL:        feedURL(name),
		ArtworkURL100:  "https://example.com/" + name + "-100.jpg",
		ArtworkURL600:  "https://example.com/" + name + "-600.jpg",
	}
}

// testFeed builds a feed of n episodes, newest first, titled with prefix.
func testFeed(name, description, prefix string, n int) *services.Feed {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := &services.Feed{
		URL:         feedURL(name),
		Title:       name,
		Description: description,
		Episodes:    make([]services.FeedEpisode, 0, n),
	}
	for i := range n {
		published := base.Add(time.Duration(n-i) * time.Hour)
		feed.Episodes = append(feed.Episodes, services.FeedEpisode{
			GUID:        fmt.Sprintf("g%d", i+1),
			Title:       fmt.Sprintf("%s %d", prefix, i+1),
			Audio:       fmt.Sprintf("https://example.com/%s/%d.mp3", name, i+1),
			PublishedAt: &published,
		})
	}
	return feed
}

func seedPodcast(t *testing.T, store *repositories.Store, p models.Podcast) models.Podcast {
	t.Helper()
	subscribed := p.Subscribed
	if _, err := store.Podcasts.Upsert(context.Background(), &p); err != nil {
		t.Fatalf("failed to seed podcast: %v", err)
	}
	if subscribed {
		if err := store.Podcasts.SetSubscribed(context.Background(), p.ID, true); err != nil {
			t.Fatalf("failed to subscribe podcast: %v", err)
		}
		p.Subscribed = true
	}
	return p
}
