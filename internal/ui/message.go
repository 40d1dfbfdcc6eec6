package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSearchSnapshot MsgKind = iota
	MsgSubscribed
	MsgPodcast
	MsgEpisodePage
	MsgStreamClosed
	MsgToggled
)

type searchSnapshot struct {
	stream <-chan tasks.Snapshot[[]models.Podcast]
	snap   tasks.Snapshot[[]models.Podcast]
}

type subscribedList struct {
	stream   <-chan []models.Podcast
	podcasts []models.Podcast
}

type podcastUpdate struct {
	stream  <-chan *models.Podcast
	podcast *models.Podcast
}

type episodePage struct {
	pager   *tasks.EpisodePager
	page    tasks.Page
	refresh bool
}

type toggled struct {
	id         int64
	subscribed bool
	err        error
}

// searchSnapshotMsg is the constructor for [MsgSearchSnapshot]
func searchSnapshotMsg(stream <-chan tasks.Snapshot[[]models.Podcast], snap tasks.Snapshot[[]models.Podcast]) Msg {
	return Msg{kind: MsgSearchSnapshot, data: searchSnapshot{stream, snap}}
}

// subscribedMsg is the constructor for [MsgSubscribed]
func subscribedMsg(stream <-chan []models.Podcast, podcasts []models.Podcast) Msg {
	return Msg{kind: MsgSubscribed, data: subscribedList{stream, podcasts}}
}

// podcastMsg is the constructor for [MsgPodcast]
func podcastMsg(stream <-chan *models.Podcast, p *models.Podcast) Msg {
	return Msg{kind: MsgPodcast, data: podcastUpdate{stream, p}}
}

// episodePageMsg is the constructor for [MsgEpisodePage]
func episodePageMsg(pager *tasks.EpisodePager, page tasks.Page, refresh bool) Msg {
	return Msg{kind: MsgEpisodePage, data: episodePage{pager, page, refresh}}
}

// streamClosedMsg is the constructor for [MsgStreamClosed]
func streamClosedMsg(stream any) Msg {
	return Msg{kind: MsgStreamClosed, data: stream}
}

// toggledMsg is the constructor for [MsgToggled]
func toggledMsg(id int64, subscribed bool, err error) Msg {
	return Msg{kind: MsgToggled, data: toggled{id, subscribed, err}}
}

// waitFor reads the next value of stream as a message built by wrap.
func waitFor[T any](stream <-chan T, wrap func(T) Msg) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-stream
		if !ok {
			return streamClosedMsg(stream)
		}
		return wrap(v)
	}
}
