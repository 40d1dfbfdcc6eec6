package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/podx/internal/formatter"
	"github.com/desertthunder/podx/internal/models"
)

var (
	_ list.Item = podcastItem{}
	_ list.Item = episodeItem{}
)

// podcastItem wraps [models.Podcast] to implement [list.Item].
type podcastItem struct {
	podcast models.Podcast
}

func (i podcastItem) FilterValue() string { return i.podcast.FeedTitle }
func (i podcastItem) Title() string {
	if i.podcast.Subscribed {
		return "★ " + i.podcast.FeedTitle
	}
	return i.podcast.FeedTitle
}
func (i podcastItem) Description() string {
	if desc := formatter.PlainText(i.podcast.FeedDescription); desc != "" {
		return formatter.Truncate(desc, 80)
	}
	return i.podcast.FeedURL
}

// episodeItem wraps [models.Episode] to implement [list.Item].
type episodeItem struct {
	episode models.Episode
}

func (i episodeItem) FilterValue() string { return i.episode.Title }
func (i episodeItem) Title() string       { return i.episode.Title }
func (i episodeItem) Description() string {
	parts := []string{}
	if date := formatter.Published(i.episode); date != "" {
		parts = append(parts, date)
	}
	if d := formatter.FormatDuration(i.episode.Duration); d != "" {
		parts = append(parts, d)
	}
	if desc := formatter.PlainText(i.episode.Description); desc != "" {
		parts = append(parts, formatter.Truncate(desc, 60))
	}
	return strings.Join(parts, " • ")
}

func podcastItems(podcasts []models.Podcast) []list.Item {
	items := make([]list.Item, len(podcasts))
	for i, p := range podcasts {
		items[i] = podcastItem{podcast: p}
	}
	return items
}

func episodeItems(episodes []models.Episode) []list.Item {
	items := make([]list.Item, len(episodes))
	for i, e := range episodes {
		items[i] = episodeItem{episode: e}
	}
	return items
}

func episodeCount(n int) string {
	if n == 1 {
		return "1 episode"
	}
	return fmt.Sprintf("%d episodes", n)
}
