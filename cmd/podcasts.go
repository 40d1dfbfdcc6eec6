package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/podx/internal/formatter"
	"github.com/desertthunder/podx/internal/models"
	"github.com/desertthunder/podx/internal/shared"
	"github.com/desertthunder/podx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// settle reads stream until the first non-loading snapshot, then releases it.
func settle[T any](ctx context.Context, open func(context.Context) <-chan tasks.Snapshot[T]) (tasks.Snapshot[T], error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for snap := range open(ctx) {
		if snap.Status != tasks.Loading {
			return snap, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return tasks.Snapshot[T]{}, err
	}
	return tasks.Snapshot[T]{}, shared.ErrNoLocalData
}

// first returns the first value of a live stream and releases it.
func first[T any](ctx context.Context, open func(context.Context) <-chan T) (T, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v, ok := <-open(ctx)
	if !ok {
		var zero T
		return zero, shared.ErrNoLocalData
	}
	return v, nil
}

func parseID(cmd *cli.Command) (int64, error) {
	raw := strings.TrimSpace(cmd.StringArg("id"))
	if raw == "" {
		return 0, fmt.Errorf("%w: podcast id", shared.ErrMissingArgument)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: podcast id %q", shared.ErrInvalidArgument, raw)
	}
	return id, nil
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// Search queries the directory and prints the merged results. Cached results are printed
// with a warning when the directory cannot be reached.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	term, err := requireArg(cmd, "term")
	if err != nil {
		return err
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}

	snap, err := settle(ctx, func(ctx context.Context) <-chan tasks.Snapshot[[]models.Podcast] {
		return engine.SearchPodcasts(ctx, term)
	})
	if err != nil {
		return err
	}
	if snap.Status == tasks.Error {
		if len(snap.Data) == 0 {
			return fmt.Errorf("search failed: %w", snap.Err)
		}
		r.logger.Warn("showing cached results", "term", term, "error", snap.Err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap.Data, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Results for %q", term))
	if len(snap.Data) == 0 {
		return r.writePlain("No podcasts found\n")
	}
	r.writePodcasts(snap.Data)
	return nil
}

// Subscribed prints the subscribed podcasts.
func (r *Runner) Subscribed(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	podcasts, err := first(ctx, engine.Subscribed)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(podcasts, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Subscribed podcasts")
	if len(podcasts) == 0 {
		return r.writePlain("No subscriptions yet\n")
	}
	r.writePodcasts(podcasts)
	return nil
}

func (r *Runner) writePodcasts(podcasts []models.Podcast) {
	for _, p := range podcasts {
		mark := " "
		if p.Subscribed {
			mark = "★"
		}
		r.writePlain("%s %4d  %s\n", mark, p.ID, p.FeedTitle)
		r.writePlain("        %s\n", p.FeedURL)
	}
}

// Toggle flips the subscription of a podcast.
func (r *Runner) Toggle(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	subscribed, err := engine.ToggleSubscription(ctx, id)
	if err != nil {
		return err
	}
	if subscribed {
		return r.writePlain("✓ Subscribed to podcast %d\n", id)
	}
	return r.writePlain("✓ Unsubscribed from podcast %d\n", id)
}

// Delete removes a podcast and its episodes.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	id, err := parseID(cmd)
	if err != nil {
		return err
	}
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	if err := engine.DeletePodcast(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted podcast %d\n", id)
}

// loadFeed settles the feed resource for feedURL. Stored data is returned with a warning when
// the refresh fails.
func (r *Runner) loadFeed(ctx context.Context, feedURL string) (*models.PodcastFeed, error) {
	engine, err := r.Engine()
	if err != nil {
		return nil, err
	}

	snap, err := settle(ctx, func(ctx context.Context) <-chan tasks.Snapshot[*models.PodcastFeed] {
		return engine.PodcastFeed(ctx, feedURL)
	})
	if err != nil {
		return nil, err
	}
	if snap.Status == tasks.Error {
		if snap.Data == nil || snap.Data.Podcast == nil {
			return nil, fmt.Errorf("failed to load feed: %w", snap.Err)
		}
		r.logger.Warn("showing stored feed", "url", feedURL, "error", snap.Err)
	}
	if snap.Data == nil || snap.Data.Podcast == nil {
		return nil, fmt.Errorf("%w: feed %s", shared.ErrNotFound, feedURL)
	}
	return snap.Data, nil
}

// Show prints a podcast and its most recent episodes.
func (r *Runner) Show(ctx context.Context, cmd *cli.Command) error {
	feedURL, err := requireArg(cmd, "feed-url")
	if err != nil {
		return err
	}

	feed, err := r.loadFeed(ctx, feedURL)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(feed, cmd.Bool("pretty"))
	}

	p := feed.Podcast
	r.writePlainHeader(p.FeedTitle)
	r.writePlain("ID:          %d\n", p.ID)
	r.writePlain("Feed:        %s\n", p.FeedURL)
	r.writePlain("Subscribed:  %v\n", p.Subscribed)
	if p.LastSyncedAt != nil {
		r.writePlain("Synced:      %s\n", p.LastSyncedAt.Local().Format("2006-01-02 15:04"))
	}
	if desc := formatter.PlainText(p.FeedDescription); desc != "" {
		r.writePlainln("%s", formatter.Truncate(desc, 400))
	}

	r.writePlainln("%d episodes", len(feed.Episodes))
	limit := min(max(cmd.Int("limit"), 0), len(feed.Episodes))
	r.writeEpisodes(feed.Episodes[:limit])
	return nil
}

func (r *Runner) writeEpisodes(episodes []models.Episode) {
	for _, e := range episodes {
		r.writePlain("  %-10s %-8s %s\n", formatter.Published(e), formatter.FormatDuration(e.Duration), e.Title)
		r.writePlain("             %s\n", e.GUID)
	}
}

// Episodes pages through a feed's stored episodes, loading the feed first.
func (r *Runner) Episodes(ctx context.Context, cmd *cli.Command) error {
	feedURL, err := requireArg(cmd, "feed-url")
	if err != nil {
		return err
	}
	if size := cmd.Int("page-size"); size > 0 {
		r.config.Feeds.PageSize = size
	}
	pages := cmd.Int("pages")
	if pages < 1 {
		return fmt.Errorf("%w: --pages must be at least 1", shared.ErrInvalidFlag)
	}

	engine, err := r.Engine()
	if err != nil {
		return err
	}
	pager := engine.EpisodesPaged(feedURL)

	var episodes []models.Episode
	for range pages {
		page := pager.Next(ctx)
		if page.Err != nil {
			r.logger.Warn("feed refresh failed", "url", feedURL, "error", page.Err)
		}
		episodes = append(episodes, page.Items...)
		if page.EndOfPaginationReached {
			break
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(episodes, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Episodes of %s", feedURL))
	if len(episodes) == 0 {
		return r.writePlain("No episodes\n")
	}
	r.writeEpisodes(episodes)
	return nil
}

// Sync refreshes every subscribed feed and reports progress as it goes.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.SyncFeeds:
				r.writePlain("[%d/%d] %s\n", update.Step, update.Total, update.Message)
			default:
				r.logger.Info(update.Message, "phase", update.Phase)
			}
		}
	}()

	result, err := engine.SyncSubscribed(ctx, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("✓ Synced %d of %d feeds", result.Synced, result.Total)
	for _, failed := range result.Failed {
		r.writePlain("  ✗ %s: %v\n", failed.Podcast.FeedTitle, failed.Err)
	}
	return nil
}

// Export writes a feed in the requested format.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	feedURL, err := requireArg(cmd, "feed-url")
	if err != nil {
		return err
	}

	format := strings.ToLower(cmd.String("format"))
	switch format {
	case "text", "txt", "md", "markdown", "csv", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}

	feed, err := r.loadFeed(ctx, feedURL)
	if err != nil {
		return err
	}

	output := cmd.String("output")
	base := formatter.BaseName(feed)

	switch format {
	case "md", "markdown":
		if output == "" {
			output = base
		}
		result, err := formatter.WriteMarkdownExport(ctx, r.httpClient, feed, output)
		if err != nil {
			return err
		}
		for _, warning := range result.Warnings {
			r.logger.Warn("export warning", "error", warning)
		}
		return r.writePlain("✓ Exported %d files to %s\n", len(result.Files), result.Directory)
	case "csv":
		if output == "" {
			output = base
		}
		result, err := formatter.WriteCSVExport(feed, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %s and %s\n", result.EpisodesFile, result.MetadataFile)
	case "json":
		if output == "" {
			return r.writeJSON(feed, true)
		}
		path, err := formatter.WriteJSONExport(feed, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %s\n", path)
	default:
		if output == "" {
			data, err := formatter.ExportToText(feed)
			if err != nil {
				return err
			}
			return r.writePlain("%s", data)
		}
		path, err := formatter.WriteTextExport(feed, output)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Exported %s\n", filepath.Clean(path))
	}
}

// Open opens an episode's media URL.
func (r *Runner) Open(ctx context.Context, cmd *cli.Command) error {
	guid, err := requireArg(cmd, "guid")
	if err != nil {
		return err
	}
	engine, err := r.Engine()
	if err != nil {
		return err
	}

	episode, err := engine.Episode(ctx, guid)
	if err != nil {
		return err
	}
	if episode.MediaURL == "" {
		return fmt.Errorf("%w: episode %s has no media url", shared.ErrNotFound, guid)
	}

	r.logger.Info("opening episode", "guid", guid, "url", episode.MediaURL)
	if err := openURL(episode.MediaURL); err != nil {
		return err
	}
	return r.writePlain("✓ Opened %s\n", episode.Title)
}

var openURL = shared.OpenURL
