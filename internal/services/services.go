// package services defines the remote podcast directory and feed clients
package services

import (
	"context"
	"strings"
	"time"

	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/shared"
)

// Directory searches a podcast directory.
type Directory interface {
	// Search returns the directory's results for term. Results may lack a feed URL.
	Search(ctx context.Context, term string) (*SearchResponse, error)
}

// FeedSource downloads and parses podcast feeds.
type FeedSource interface {
	// Fetch returns the parsed feed at feedURL.
	Fetch(ctx context.Context, feedURL string) (*Feed, error)
}

// SearchResponse is the directory's answer to a search.
type SearchResponse struct {
	ResultCount int                `json:"resultCount"`
	Results     []DirectoryPodcast `json:"results"`
}

// DirectoryPodcast is a single directory search hit.
type DirectoryPodcast struct {
	CollectionID   int64  `json:"collectionId"`
	CollectionName string `json:"collectionName"`
	FeedURL        string `json:"feedUrl"`
	ArtworkURL100  string `json:"artworkUrl100"`
	ArtworkURL600  string `json:"artworkUrl600"`
	ReleaseDate    string `json:"releaseDate"`
}

// Podcast converts the hit into an unsubscribed [models.Podcast] candidate.
func (d DirectoryPodcast) Podcast() models.Podcast {
	return models.Podcast{
		CollectionID: d.CollectionID,
		FeedURL:      strings.TrimSpace(d.FeedURL),
		FeedTitle:    d.CollectionName,
		ImageURL:     d.ArtworkURL100,
		ImageURL600:  d.ArtworkURL600,
		ReleaseDate:  d.ReleaseDate,
	}
}

// Podcasts returns the persistable results in directory order, dropping hits without a feed
// URL or collection id.
func (r *SearchResponse) Podcasts() []models.Podcast {
	podcasts := make([]models.Podcast, 0, len(r.Results))
	for _, result := range r.Results {
		p := result.Podcast()
		if p.FeedURL == "" || p.CollectionID <= 0 {
			continue
		}
		podcasts = append(podcasts, p)
	}
	return podcasts
}

// Feed is a parsed podcast feed. Absent fields are empty strings.
type Feed struct {
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	LastBuildDate string        `json:"last_build_date"`
	Image         string        `json:"image"`
	Episodes      []FeedEpisode `json:"episodes"`
}

// FeedEpisode is a single parsed feed item.
type FeedEpisode struct {
	Author      string     `json:"author"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Audio       string     `json:"audio"`
	Description string     `json:"description"`
	GUID        string     `json:"guid"`
	PubDate     string     `json:"pub_date"`
	Image       string     `json:"image"`
	Video       string     `json:"video"`
	Link        string     `json:"link"`
	Duration    string     `json:"duration"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Episode converts the item into a [models.Episode] owned by podcastID.
//
// Items without a guid get one derived from the feed URL and the item's link, media and
// title, so re-syncing the same feed replaces rather than duplicates them.
func (e FeedEpisode) Episode(feedURL string, podcastID int64) models.Episode {
	guid := strings.TrimSpace(e.GUID)
	if guid == "" {
		guid = shared.EpisodeGUID(feedURL, e.Link, e.Audio, e.Video, e.Title, e.PubDate)
	}

	description := e.Description
	if description == "" {
		description = e.Content
	}

	media := e.Audio
	if media == "" {
		media = e.Video
	}

	id := podcastID
	return models.Episode{
		GUID:        guid,
		PodcastID:   &id,
		Title:       e.Title,
		Description: description,
		MediaURL:    media,
		ReleaseDate: e.PubDate,
		Duration:    e.Duration,
		PublishedAt: e.PublishedAt,
	}
}

// EpisodeModels converts every item of the feed into episodes owned by podcastID.
func (f *Feed) EpisodeModels(podcastID int64) []models.Episode {
	episodes := make([]models.Episode, 0, len(f.Episodes))
	for _, e := range f.Episodes {
		episodes = append(episodes, e.Episode(f.URL, podcastID))
	}
	return episodes
}
