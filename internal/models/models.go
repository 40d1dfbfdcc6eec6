// package models defines the data model for the podcast sync engine
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Podcast is a directory or feed podcast stored locally.
//
// ID is local and stable; CollectionID is the directory's identifier (0 when the podcast
// was added from a feed URL alone).
type Podcast struct {
	ID              int64      `db:"id" json:"id"`
	CollectionID    int64      `db:"collection_id" json:"collection_id"`
	FeedURL         string     `db:"feed_url" json:"feed_url"`
	FeedTitle       string     `db:"feed_title" json:"title"`
	FeedDescription string     `db:"feed_description" json:"description"`
	ImageURL        string     `db:"image_url" json:"image_url"`
	ImageURL600     string     `db:"image_url600" json:"image_url_600"`
	ReleaseDate     string     `db:"release_date" json:"release_date"`
	Subscribed      bool       `db:"subscribed" json:"subscribed"`
	LastSyncedAt    *time.Time `db:"last_synced_at" json:"last_synced_at,omitempty"`
}

// Validate checks the fields required before a podcast can be persisted.
func (p *Podcast) Validate() error {
	if strings.TrimSpace(p.FeedURL) == "" {
		return fmt.Errorf("feed url is required")
	}
	if p.CollectionID < 0 {
		return fmt.Errorf("collection id must not be negative")
	}
	return nil
}

// Released parses the directory release date (RFC 3339).
func (p *Podcast) Released() (time.Time, bool) {
	if p.ReleaseDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, p.ReleaseDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Artwork returns the largest known artwork URL.
func (p *Podcast) Artwork() string {
	if p.ImageURL600 != "" {
		return p.ImageURL600
	}
	return p.ImageURL
}

// Episode is a single feed item. GUID is server supplied or derived locally.
type Episode struct {
	GUID        string     `db:"guid" json:"guid"`
	PodcastID   *int64     `db:"podcast_id" json:"podcast_id,omitempty"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	MediaURL    string     `db:"media_url" json:"media_url"`
	ReleaseDate string     `db:"release_date" json:"release_date"`
	Duration    string     `db:"duration" json:"duration"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// Validate checks the fields required before an episode can be persisted.
func (e *Episode) Validate() error {
	if strings.TrimSpace(e.GUID) == "" {
		return fmt.Errorf("guid is required")
	}
	return nil
}

// SearchResult caches the ordered collection ids returned for a normalized search term.
//
// Count is the total reported by the directory and may exceed len(CollectionIDs) when
// results without a feed URL were dropped.
type SearchResult struct {
	Term          string    `json:"term"`
	CollectionIDs []int64   `json:"collection_ids"`
	Count         int       `json:"count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Ranks maps each collection id to its position in the result list.
func (s *SearchResult) Ranks() map[int64]int {
	ranks := make(map[int64]int, len(s.CollectionIDs))
	for i, id := range s.CollectionIDs {
		if _, ok := ranks[id]; !ok {
			ranks[id] = i
		}
	}
	return ranks
}

// PodcastFeed is a podcast with its stored episodes. Podcast is nil when no row exists.
type PodcastFeed struct {
	Podcast  *Podcast  `json:"podcast"`
	Episodes []Episode `json:"episodes"`
}

// JoinIDs encodes ids as a comma separated list.
func JoinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// SplitIDs decodes a comma separated id list, skipping entries that do not parse.
func SplitIDs(s string) []int64 {
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
