package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/semaphore"
)

const defaultMaxFeedBytes = 20 << 20

// FeedOpts configures a [FeedService].
type FeedOpts struct {
	HTTPClient *http.Client
	// Workers bounds concurrent parses across all callers.
	Workers  int
	MaxBytes int64
	Logger   *log.Logger
}

// FeedService implements [FeedSource]. Downloads run on the caller's goroutine; parsing runs
// on a pool of at most Workers goroutines.
type FeedService struct {
	httpClient *http.Client
	sem        *semaphore.Weighted
	maxBytes   int64
	logger     *log.Logger
}

var _ FeedSource = (*FeedService)(nil)

// NewFeedService creates a new feed client.
func NewFeedService(opts FeedOpts) *FeedService {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxFeedBytes
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &FeedService{
		httpClient: opts.HTTPClient,
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		maxBytes:   opts.MaxBytes,
		logger:     shared.WithLogger(opts.Logger, "service", "feed"),
	}
}

// Fetch downloads feedURL and parses it.
func (s *FeedService) Fetch(ctx context.Context, feedURL string) (*Feed, error) {
	feed, err := s.fetch(ctx, feedURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug("feed fetch cancelled", "url", feedURL)
		} else {
			s.logger.Error("feed fetch failed", "url", feedURL, "error", err)
		}
		return nil, err
	}

	s.logger.Debug("feed fetched", "url", feedURL, "episodes", len(feed.Episodes))
	return feed, nil
}

func (s *FeedService) fetch(ctx context.Context, feedURL string) (*Feed, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, fmt.Errorf("%w: feed url is empty", shared.ErrInvalidInput)
	}

	body, err := s.download(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	parsed, err := s.parse(ctx, body)
	if err != nil {
		return nil, err
	}
	return toFeed(feedURL, parsed), nil
}

func (s *FeedService) download(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", shared.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", shared.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: feed error: status %d", shared.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", shared.ErrTransport, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("%w: feed larger than %d bytes", shared.ErrParse, s.maxBytes)
	}
	return body, nil
}

type parseResult struct {
	feed *gofeed.Feed
	err  error
}

// parse runs on the worker pool. A cancelled caller stops waiting; the parse itself finishes
// and releases its slot.
func (s *FeedService) parse(ctx context.Context, body []byte) (*gofeed.Feed, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan parseResult, 1)
	go func() {
		defer s.sem.Release(1)
		feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
		done <- parseResult{feed: feed, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: failed to parse feed: %w", shared.ErrParse, r.err)
		}
		return r.feed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func toFeed(feedURL string, f *gofeed.Feed) *Feed {
	feed := &Feed{
		URL:           feedURL,
		Title:         strings.TrimSpace(f.Title),
		Description:   f.Description,
		LastBuildDate: f.Updated,
		Episodes:      make([]FeedEpisode, 0, len(f.Items)),
	}
	if f.Image != nil {
		feed.Image = f.Image.URL
	}
	if feed.Image == "" && f.ITunesExt != nil {
		feed.Image = f.ITunesExt.Image
	}
	if feed.Description == "" && f.ITunesExt != nil {
		feed.Description = f.ITunesExt.Summary
	}

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		feed.Episodes = append(feed.Episodes, toFeedEpisode(item))
	}
	return feed
}

func toFeedEpisode(item *gofeed.Item) FeedEpisode {
	e := FeedEpisode{
		Title:       strings.TrimSpace(item.Title),
		Content:     item.Content,
		Description: item.Description,
		GUID:        item.GUID,
		PubDate:     item.Published,
		Link:        item.Link,
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		e.PublishedAt = &t
	}
	if item.Author != nil {
		e.Author = item.Author.Name
	}
	if item.Image != nil {
		e.Image = item.Image.URL
	}

	if item.ITunesExt != nil {
		if e.Author == "" {
			e.Author = item.ITunesExt.Author
		}
		if e.Image == "" {
			e.Image = item.ITunesExt.Image
		}
		if e.Description == "" {
			e.Description = item.ITunesExt.Summary
		}
		e.Duration = item.ITunesExt.Duration
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		switch {
		case strings.HasPrefix(enc.Type, "video/"):
			if e.Video == "" {
				e.Video = enc.URL
			}
		case strings.HasPrefix(enc.Type, "audio/"), enc.Type == "":
			if e.Audio == "" {
				e.Audio = enc.URL
			}
		}
	}
	return e
}
