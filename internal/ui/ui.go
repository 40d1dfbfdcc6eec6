package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/podx/internal/formatter"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SearchView ViewState = iota
	FeedView
)

// Mode selects what the search view lists.
type Mode int

const (
	SearchMode Mode = iota
	SubscribedMode
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	engine   *tasks.PodcastEngine
	searcher *tasks.Searcher
	view     ViewState
	mode     Mode
	width    int
	height   int

	input       textinput.Model
	podcastList list.Model
	episodeList list.Model
	spinner     spinner.Model
	help        help.Model
	keys        keyMap

	searchResults []models.Podcast
	subscribed    []models.Podcast
	podcast       *models.Podcast
	episodes      []models.Episode

	searchStream     <-chan tasks.Snapshot[[]models.Podcast]
	subscribedStream <-chan []models.Podcast
	podcastStream    <-chan *models.Podcast
	feedCtx          context.Context
	feedCancel       context.CancelFunc

	pager       *tasks.EpisodePager
	pageLoading bool
	pageEnd     bool

	loading    bool
	status     string
	lastStatus tasks.Status
	err        error
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, engine *tasks.PodcastEngine) *Model {
	input := textinput.New()
	input.Placeholder = "Search podcasts"
	input.Prompt = "/ "
	input.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot

	podcasts := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	podcasts.Title = "Search"
	podcasts.SetFilteringEnabled(false)
	podcasts.SetShowHelp(false)

	episodes := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	episodes.SetFilteringEnabled(false)
	episodes.SetShowHelp(false)

	return &Model{
		ctx:         ctx,
		engine:      engine,
		searcher:    tasks.NewSearcher(engine),
		view:        SearchView,
		mode:        SearchMode,
		input:       input,
		podcastList: podcasts,
		episodeList: episodes,
		spinner:     s,
		help:        help.New(),
		keys:        newKeyMap(),
	}
}

// Init starts the subscription stream and the cursor blink.
func (m *Model) Init() tea.Cmd {
	m.subscribedStream = m.engine.Subscribed(m.ctx)
	return tea.Batch(textinput.Blink, m.waitForSubscribed())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.podcastList.SetSize(msg.Width-4, msg.Height-8)
		m.episodeList.SetSize(msg.Width-4, msg.Height-10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SearchView:
			return m.handleSearchKeys(msg)
		case FeedView:
			return m.handleFeedKeys(msg)
		}

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgSearchSnapshot:
		data := msg.data.(searchSnapshot)
		if data.stream != m.searchStream {
			return m, nil
		}
		m.searchResults = data.snap.Data
		cmd := m.applyStatus(data.snap.Status, data.snap.Err)
		if m.mode == SearchMode {
			m.podcastList.SetItems(podcastItems(m.searchResults))
		}
		return m, tea.Batch(cmd, m.waitForSearch())

	case MsgSubscribed:
		data := msg.data.(subscribedList)
		if data.stream != m.subscribedStream {
			return m, nil
		}
		m.subscribed = data.podcasts
		if m.mode == SubscribedMode {
			m.podcastList.SetItems(podcastItems(m.subscribed))
		}
		return m, m.waitForSubscribed()

	case MsgPodcast:
		data := msg.data.(podcastUpdate)
		if data.stream != m.podcastStream {
			return m, nil
		}
		if data.podcast != nil {
			m.podcast = data.podcast
		}
		return m, m.waitForPodcast()

	case MsgEpisodePage:
		data := msg.data.(episodePage)
		if data.pager != m.pager {
			return m, nil
		}
		m.pageLoading = false
		m.pageEnd = data.page.EndOfPaginationReached
		if data.refresh {
			m.episodes = nil
		}
		m.episodes = append(m.episodes, data.page.Items...)
		m.episodeList.SetItems(episodeItems(m.episodes))
		if data.page.Err != nil {
			return m, m.applyStatus(tasks.Error, data.page.Err)
		}
		return m, m.applyStatus(tasks.Success, nil)

	case MsgStreamClosed:
		switch msg.data {
		case any(m.searchStream):
			m.searchStream = nil
			m.loading = false
		case any(m.podcastStream):
			m.podcastStream = nil
		case any(m.subscribedStream):
			m.subscribedStream = nil
		}
		return m, nil

	case MsgToggled:
		data := msg.data.(toggled)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		m.err = nil
		m.lastStatus = tasks.Success
		m.status = "Unsubscribed"
		if data.subscribed {
			m.status = "Subscribed"
		}
		m.markSubscribed(data.id, data.subscribed)
		return m, nil
	}
	return m, nil
}

// applyStatus records a snapshot's status and starts the spinner when loading begins.
func (m *Model) applyStatus(status tasks.Status, err error) tea.Cmd {
	wasLoading := m.loading
	m.loading = status == tasks.Loading
	m.lastStatus = status
	switch status {
	case tasks.Loading:
		m.status = "Refreshing…"
		m.err = nil
	case tasks.Success:
		m.status = ""
		m.err = nil
	case tasks.Error:
		m.status = "Showing cached data"
		m.err = err
	}
	if m.loading && !wasLoading {
		return m.spinner.Tick
	}
	return nil
}

func (m *Model) markSubscribed(id int64, subscribed bool) {
	for i := range m.searchResults {
		if m.searchResults[i].ID == id {
			m.searchResults[i].Subscribed = subscribed
		}
	}
	if m.podcast != nil && m.podcast.ID == id {
		m.podcast.Subscribed = subscribed
	}
	if m.mode == SearchMode {
		m.podcastList.SetItems(podcastItems(m.searchResults))
	}
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.input.Focused() {
		switch msg.String() {
		case "ctrl+c":
			return m, m.quit()
		case "enter":
			m.input.Blur()
			return m, m.startSearch(m.input.Value())
		case "esc":
			m.input.Blur()
			return m, nil
		case "tab":
			return m, m.switchMode()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.search):
		m.mode = SearchMode
		m.podcastList.Title = "Search"
		m.podcastList.SetItems(podcastItems(m.searchResults))
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.mode):
		return m, m.switchMode()
	case key.Matches(msg, m.keys.toggle):
		if p, ok := m.selectedPodcast(); ok {
			return m, m.toggle(p.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if p, ok := m.selectedPodcast(); ok {
			return m, m.openFeed(p)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.podcastList, cmd = m.podcastList.Update(msg)
	return m, cmd
}

func (m *Model) handleFeedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c", msg.String() == "q":
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.closeFeed()
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if m.podcast != nil {
			return m, m.toggle(m.podcast.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadPage(true)
	}

	var cmd tea.Cmd
	m.episodeList, cmd = m.episodeList.Update(msg)
	if n := len(m.episodeList.Items()); n > 0 && m.episodeList.Index() == n-1 {
		return m, tea.Batch(cmd, m.loadPage(false))
	}
	return m, cmd
}

func (m *Model) switchMode() tea.Cmd {
	m.input.Blur()
	if m.mode == SearchMode {
		m.mode = SubscribedMode
		m.podcastList.Title = "Subscribed"
		return m.podcastList.SetItems(podcastItems(m.subscribed))
	}
	m.mode = SearchMode
	m.podcastList.Title = "Search"
	return m.podcastList.SetItems(podcastItems(m.searchResults))
}

// startSearch replaces the running search. A blank query clears the results.
func (m *Model) startSearch(query string) tea.Cmd {
	m.mode = SearchMode
	m.podcastList.Title = "Search"
	m.searchStream = m.searcher.Search(m.ctx, query)

	if strings.TrimSpace(query) == "" {
		m.searchStream = nil
		m.searchResults = nil
		m.loading = false
		m.status = ""
		return m.podcastList.SetItems([]list.Item{})
	}
	return m.waitForSearch()
}

func (m *Model) openFeed(p models.Podcast) tea.Cmd {
	m.closeFeed()

	m.feedCtx, m.feedCancel = context.WithCancel(m.ctx)
	m.podcast = &p
	m.episodes = nil
	m.podcastStream = m.engine.RequirePodcast(m.feedCtx, p.FeedURL)
	m.pager = m.engine.EpisodesPaged(p.FeedURL)
	m.pageEnd = false
	m.episodeList.Title = p.FeedTitle
	m.episodeList.SetItems([]list.Item{})
	m.view = FeedView
	return tea.Batch(m.waitForPodcast(), m.loadPage(false))
}

func (m *Model) closeFeed() {
	if m.feedCancel != nil {
		m.feedCancel()
		m.feedCancel = nil
	}
	m.podcastStream = nil
	m.pager = nil
	m.pageLoading = false
	m.loading = false
	m.view = SearchView
}

// loadPage reads the next page of episodes, or the first one again when refresh is set.
// Only one page is read at a time and nothing is read past the end unless refreshing.
func (m *Model) loadPage(refresh bool) tea.Cmd {
	if m.pager == nil || m.pageLoading || (m.pageEnd && !refresh) {
		return nil
	}
	m.pageLoading = true
	pager, ctx := m.pager, m.feedCtx
	return tea.Batch(m.applyStatus(tasks.Loading, nil), func() tea.Msg {
		if refresh {
			return episodePageMsg(pager, pager.Refresh(ctx), true)
		}
		return episodePageMsg(pager, pager.Next(ctx), false)
	})
}

func (m *Model) quit() tea.Cmd {
	m.searcher.Stop()
	if m.feedCancel != nil {
		m.feedCancel()
	}
	return tea.Quit
}

func (m *Model) selectedPodcast() (models.Podcast, bool) {
	if item, ok := m.podcastList.SelectedItem().(podcastItem); ok {
		return item.podcast, true
	}
	return models.Podcast{}, false
}

func (m *Model) toggle(id int64) tea.Cmd {
	return func() tea.Msg {
		subscribed, err := m.engine.ToggleSubscription(m.ctx, id)
		return toggledMsg(id, subscribed, err)
	}
}

func (m *Model) waitForSearch() tea.Cmd {
	stream := m.searchStream
	return waitFor(stream, func(snap tasks.Snapshot[[]models.Podcast]) Msg {
		return searchSnapshotMsg(stream, snap)
	})
}

func (m *Model) waitForSubscribed() tea.Cmd {
	stream := m.subscribedStream
	return waitFor(stream, func(podcasts []models.Podcast) Msg {
		return subscribedMsg(stream, podcasts)
	})
}

func (m *Model) waitForPodcast() tea.Cmd {
	stream := m.podcastStream
	return waitFor(stream, func(p *models.Podcast) Msg {
		return podcastMsg(stream, p)
	})
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SearchView:
		return m.renderSearch()
	case FeedView:
		return m.renderFeed()
	default:
		return ""
	}
}

func (m *Model) renderStatus() string {
	var parts []string
	if m.loading {
		parts = append(parts, m.spinner.View()+" "+styles.forStatus(tasks.Loading).Render(m.status))
	} else if m.status != "" {
		parts = append(parts, styles.forStatus(m.lastStatus).Render(m.status))
	}
	if m.err != nil {
		parts = append(parts, styles.forStatus(tasks.Error).Render(fmt.Sprintf("Error: %v", m.err)))
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderSearch() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.search, m.keys.mode, m.keys.toggle, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	if m.mode == SearchMode && len(m.searchResults) == 0 && !m.loading {
		b.WriteString(styles.help.Render("No results"))
		b.WriteString("\n")
	} else if m.mode == SubscribedMode && len(m.subscribed) == 0 {
		b.WriteString(styles.help.Render("No subscriptions yet"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.podcastList.View())
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(helpView)
	return b.String()
}

func (m *Model) renderFeed() string {
	helpKeys := []key.Binding{m.keys.toggle, m.keys.refresh, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	var header string
	if p := m.podcast; p != nil {
		title := p.FeedTitle
		header = styles.title.Render(title)
		if p.Subscribed {
			header = styles.star.Render("★ ") + header
		}
		if desc := formatter.PlainText(p.FeedDescription); desc != "" {
			header += "\n" + formatter.Truncate(desc, max(m.width-4, 40)*2)
		}
		count := episodeCount(len(m.episodes))
		if !m.pageEnd && len(m.episodes) > 0 {
			count += ", more below"
		}
		header += "\n" + styles.help.Render(count)
	}

	return fmt.Sprintf("%s\n\n%s\n%s\n%s", header, m.episodeList.View(), m.renderStatus(), helpView)
}
