package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/repositories"
	"github.com/desertthunder/podx/internal/services"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/desertthunder/podx/internal/tasks"
)

// offlineFeeds fails every fetch so feed views show stored data only.
type offlineFeeds struct{}

func (offlineFeeds) Fetch(context.Context, string) (*services.Feed, error) {
	return nil, fmt.Errorf("%w: offline", shared.ErrTransport)
}

// runCmd runs cmd and any batched commands, returning every message produced.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var msgs []tea.Msg
		for _, c := range batch {
			msgs = append(msgs, runCmd(c)...)
		}
		return msgs
	}
	return []tea.Msg{msg}
}

// deliverPages feeds every episode page produced by cmd back into m.
func deliverPages(t *testing.T, m *Model, cmd tea.Cmd) int {
	t.Helper()
	var n int
	for _, msg := range runCmd(cmd) {
		if msg, ok := msg.(Msg); ok && msg.kind == MsgEpisodePage {
			m.Update(msg)
			n++
		}
	}
	return n
}

func newTestModel(t *testing.T) (*Model, *repositories.Store) {
	t.Helper()

	db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "ui.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := shared.NewLogger(io.Discard)
	store := repositories.NewStore(db, logger)
	engine := tasks.NewPodcastEngine(tasks.EngineOpts{Store: store, Feeds: offlineFeeds{}, PageSize: 2, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewModel(ctx, engine), store
}

func TestModel(t *testing.T) {
	t.Run("drops snapshots from replaced streams", func(t *testing.T) {
		m, _ := newTestModel(t)
		current := make(chan tasks.Snapshot[[]models.Podcast])
		stale := make(chan tasks.Snapshot[[]models.Podcast])
		m.searchStream = current

		snap := tasks.Snapshot[[]models.Podcast]{Status: tasks.Success, Data: []models.Podcast{{ID: 1, FeedTitle: "Old"}}}
		_, cmd := m.Update(searchSnapshotMsg(stale, snap))
		if cmd != nil {
			t.Error("expected no follow-up command for a stale stream")
		}
		if len(m.searchResults) != 0 {
			t.Errorf("expected stale results to be ignored, got %d", len(m.searchResults))
		}
	})

	t.Run("loading snapshot starts the spinner", func(t *testing.T) {
		m, _ := newTestModel(t)
		stream := make(chan tasks.Snapshot[[]models.Podcast])
		m.searchStream = stream

		snap := tasks.Snapshot[[]models.Podcast]{Status: tasks.Loading, Data: []models.Podcast{{ID: 1, FeedTitle: "Radiolab"}}}
		_, cmd := m.Update(searchSnapshotMsg(stream, snap))
		if cmd == nil {
			t.Fatal("expected spinner and stream commands")
		}
		if !m.loading {
			t.Error("expected model to be loading")
		}
		if got := len(m.podcastList.Items()); got != 1 {
			t.Errorf("expected 1 list item, got %d", got)
		}
	})

	t.Run("error snapshot keeps cached data", func(t *testing.T) {
		m, _ := newTestModel(t)
		stream := make(chan tasks.Snapshot[[]models.Podcast])
		m.searchStream = stream

		snap := tasks.Snapshot[[]models.Podcast]{
			Status: tasks.Error,
			Data:   []models.Podcast{{ID: 1, FeedTitle: "Radiolab"}},
			Err:    errors.New("offline"),
		}
		m.Update(searchSnapshotMsg(stream, snap))
		if m.loading {
			t.Error("expected loading to stop")
		}
		if len(m.searchResults) != 1 {
			t.Errorf("expected cached results to remain, got %d", len(m.searchResults))
		}
		if view := m.View(); !strings.Contains(view, "offline") {
			t.Errorf("expected error in view, got %q", view)
		}
	})

	t.Run("closed stream is cleared", func(t *testing.T) {
		m, _ := newTestModel(t)
		stream := make(chan tasks.Snapshot[[]models.Podcast])
		m.searchStream = stream
		m.loading = true

		m.Update(streamClosedMsg((<-chan tasks.Snapshot[[]models.Podcast])(stream)))
		if m.searchStream != nil {
			t.Error("expected search stream to be cleared")
		}
		if m.loading {
			t.Error("expected loading to stop")
		}
	})

	t.Run("blank search clears results", func(t *testing.T) {
		m, _ := newTestModel(t)
		m.searchResults = []models.Podcast{{ID: 1}}

		m.startSearch("   ")
		if m.searchStream != nil || m.searchResults != nil {
			t.Error("expected blank search to clear state")
		}
		if view := m.View(); !strings.Contains(view, "No results") {
			t.Errorf("expected empty state in view, got %q", view)
		}
	})

	t.Run("tab switches to subscribed", func(t *testing.T) {
		m, _ := newTestModel(t)
		m.input.Blur()
		m.subscribed = []models.Podcast{{ID: 2, FeedTitle: "Serial", Subscribed: true}}

		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.mode != SubscribedMode {
			t.Fatalf("expected subscribed mode, got %v", m.mode)
		}
		if got := len(m.podcastList.Items()); got != 1 {
			t.Errorf("expected 1 subscribed item, got %d", got)
		}
	})

	t.Run("toggle updates subscription", func(t *testing.T) {
		m, store := newTestModel(t)
		ctx := context.Background()
		p := models.Podcast{CollectionID: 7, FeedURL: "https://example.com/serial.xml", FeedTitle: "Serial"}
		id, err := store.Podcasts.Upsert(ctx, &p)
		if err != nil {
			t.Fatalf("failed to seed podcast: %v", err)
		}
		p.ID = id
		m.searchResults = []models.Podcast{p}

		msg := m.toggle(id)()
		m.Update(msg)
		if !m.searchResults[0].Subscribed {
			t.Error("expected podcast to be marked subscribed")
		}
		if m.status != "Subscribed" {
			t.Errorf("expected status %q, got %q", "Subscribed", m.status)
		}

		msg = m.toggle(id)()
		m.Update(msg)
		if m.searchResults[0].Subscribed {
			t.Error("expected podcast to be unsubscribed")
		}
	})

	t.Run("toggle of unknown podcast reports error", func(t *testing.T) {
		m, _ := newTestModel(t)
		m.Update(m.toggle(404)())
		if !errors.Is(m.err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", m.err)
		}
	})

	t.Run("init streams subscriptions", func(t *testing.T) {
		m, _ := newTestModel(t)
		cmd := m.Init()
		if cmd == nil {
			t.Fatal("expected init command")
		}
		msg, ok := m.waitForSubscribed()().(Msg)
		if !ok || msg.kind != MsgSubscribed {
			t.Fatalf("expected subscribed message, got %#v", msg)
		}
		if _, cmd := m.Update(msg); cmd == nil {
			t.Error("expected subscription stream to keep waiting")
		}
	})

	t.Run("feed view renders header", func(t *testing.T) {
		m, _ := newTestModel(t)
		stream := make(chan *models.Podcast)
		pager := m.engine.EpisodesPaged("https://example.com/radiolab.xml")
		m.view = FeedView
		m.podcastStream = stream
		m.pager = pager

		m.Update(podcastMsg(stream, &models.Podcast{ID: 3, FeedTitle: "Radiolab", FeedDescription: "<p>Science</p>", Subscribed: true}))
		m.Update(episodePageMsg(pager, tasks.Page{
			Items:                  []models.Episode{{GUID: "g1", Title: "One"}},
			EndOfPaginationReached: true,
		}, false))

		view := m.View()
		for _, want := range []string{"Radiolab", "Science", "1 episode"} {
			if !strings.Contains(view, want) {
				t.Errorf("expected view to contain %q, got %q", want, view)
			}
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != SearchView {
			t.Error("expected esc to return to search")
		}
	})

	t.Run("feed view pages through stored episodes", func(t *testing.T) {
		m, store := newTestModel(t)
		ctx := context.Background()
		p := models.Podcast{CollectionID: 9, FeedURL: "https://example.com/radiolab.xml", FeedTitle: "Radiolab"}
		if _, err := store.Podcasts.Upsert(ctx, &p); err != nil {
			t.Fatalf("failed to seed podcast: %v", err)
		}
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		episodes := make([]models.Episode, 3)
		for i := range episodes {
			published := base.Add(-time.Duration(i) * time.Hour)
			episodes[i] = models.Episode{GUID: fmt.Sprintf("g%d", i+1), PodcastID: &p.ID, Title: fmt.Sprintf("Episode %d", i+1), PublishedAt: &published}
		}
		if err := store.Episodes.InsertAll(ctx, episodes); err != nil {
			t.Fatalf("failed to seed episodes: %v", err)
		}
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})

		if n := deliverPages(t, m, m.openFeed(p)); n != 1 {
			t.Fatalf("expected one page, got %d", n)
		}
		if len(m.episodes) != 2 {
			t.Fatalf("expected first page of 2 episodes, got %d", len(m.episodes))
		}
		if !errors.Is(m.err, shared.ErrTransport) {
			t.Errorf("expected the failed refresh to be reported, got %v", m.err)
		}
		if m.pageEnd {
			t.Error("expected more pages")
		}
		if view := m.View(); !strings.Contains(view, "2 episodes, more below") {
			t.Errorf("expected page count in view, got %q", view)
		}

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyDown})
		if n := deliverPages(t, m, cmd); n != 1 {
			t.Fatalf("expected reaching the last episode to load a page, got %d", n)
		}
		if len(m.episodes) != 3 {
			t.Fatalf("expected 3 episodes, got %d", len(m.episodes))
		}
		if m.episodes[2].Title != "Episode 3" {
			t.Errorf("expected oldest episode last, got %q", m.episodes[2].Title)
		}
		if !m.pageEnd || m.err != nil {
			t.Errorf("expected the end without error, got end=%v err=%v", m.pageEnd, m.err)
		}
		if m.loadPage(false) != nil {
			t.Error("expected no load past the end")
		}

		if n := deliverPages(t, m, m.loadPage(true)); n != 1 {
			t.Fatalf("expected refresh to load a page, got %d", n)
		}
		if len(m.episodes) != 2 {
			t.Errorf("expected refresh to restart from the first page, got %d", len(m.episodes))
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.pager != nil || m.view != SearchView {
			t.Error("expected esc to release the pager")
		}
	})
}
