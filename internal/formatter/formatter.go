// package formatter exports podcast feeds to various formats (CSV, JSON, Markdown, plain text)
package formatter

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/desertthunder/podx/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// PlainText removes all html from a feed description and collapses its whitespace.
func PlainText(s string) string {
	s = stripPolicy.Sanitize(strings.TrimSpace(s))
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// Truncate shortens s to at most n runes, ending with an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}

// FormatDuration normalizes an itunes:duration value. Plain seconds become h:mm:ss or m:ss;
// anything else is returned trimmed.
func FormatDuration(d string) string {
	d = strings.TrimSpace(d)
	seconds, err := strconv.Atoi(d)
	if err != nil || seconds < 0 {
		return d
	}

	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Published returns the episode's publish date as YYYY-MM-DD, or its raw feed date.
func Published(e models.Episode) string {
	if e.PublishedAt != nil {
		return e.PublishedAt.UTC().Format(time.DateOnly)
	}
	return e.ReleaseDate
}

// Slug turns a title into a lowercase file name.
func Slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// BaseName derives the default export name for feed from its title, falling back to its id.
func BaseName(feed *models.PodcastFeed) string {
	if feed.Podcast == nil {
		return "podcast"
	}
	if slug := Slug(feed.Podcast.FeedTitle); slug != "" {
		return slug
	}
	return fmt.Sprintf("podcast-%d", feed.Podcast.ID)
}

func podcastOf(feed *models.PodcastFeed) models.Podcast {
	if feed.Podcast == nil {
		return models.Podcast{}
	}
	return *feed.Podcast
}

// ExportToCSV converts a PodcastFeed to CSV format with columns: GUID, Title, Published, Duration, Media URL
func ExportToCSV(feed *models.PodcastFeed) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"GUID", "Title", "Published", "Duration", "Media URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, ep := range feed.Episodes {
		record := []string{
			ep.GUID,
			ep.Title,
			Published(ep),
			FormatDuration(ep.Duration),
			ep.MediaURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PodcastFeed to Markdown format with optional cover image
func ExportToMarkdown(feed *models.PodcastFeed, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer
	p := podcastOf(feed)

	fmt.Fprintf(&buf, "# %s\n\n", p.FeedTitle)

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	if desc := PlainText(p.FeedDescription); desc != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", desc)
	}

	fmt.Fprintf(&buf, "**Feed**: <%s>\n", p.FeedURL)
	fmt.Fprintf(&buf, "**Episodes**: %d\n", len(feed.Episodes))
	fmt.Fprintf(&buf, "**Subscribed**: %s\n\n", yesNo(p.Subscribed))

	buf.WriteString("## Episodes\n\n")
	for i, ep := range feed.Episodes {
		details := []string{}
		if date := Published(ep); date != "" {
			details = append(details, date)
		}
		if d := FormatDuration(ep.Duration); d != "" {
			details = append(details, d)
		}

		title := ep.Title
		if ep.MediaURL != "" {
			title = fmt.Sprintf("[%s](%s)", ep.Title, ep.MediaURL)
		}
		if len(details) > 0 {
			fmt.Fprintf(&buf, "%d. %s [%s]\n", i+1, title, strings.Join(details, ", "))
		} else {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, title)
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PodcastFeed to plain text format
func ExportToText(feed *models.PodcastFeed) ([]byte, error) {
	var buf bytes.Buffer
	p := podcastOf(feed)

	fmt.Fprintf(&buf, "Podcast: %s\n", p.FeedTitle)
	if desc := PlainText(p.FeedDescription); desc != "" {
		fmt.Fprintf(&buf, "Description: %s\n", desc)
	}
	fmt.Fprintf(&buf, "Episodes: %d\n\n", len(feed.Episodes))

	for i, ep := range feed.Episodes {
		if date := Published(ep); date != "" {
			fmt.Fprintf(&buf, "%d. %s (%s)\n", i+1, ep.Title, date)
		} else {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, ep.Title)
		}
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a PodcastFeed to indented JSON
func ExportToJSON(feed *models.PodcastFeed) ([]byte, error) {
	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ToMetadataJSON generates a JSON representation of podcast metadata (without episodes)
func ToMetadataJSON(p models.Podcast) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	EpisodesFile string
	MetadataFile string
}

// WriteCSVExport exports a feed to CSV format with accompanying metadata JSON file.
//
// Defaults to [BaseName] as the base filename & creates {base}_episodes.csv and {base}_metadata.json
func WriteCSVExport(feed *models.PodcastFeed, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = BaseName(feed)
	}

	csvData, err := ExportToCSV(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	episodesFile := baseFilepath + "_episodes.csv"
	if err := os.WriteFile(episodesFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(podcastOf(feed))
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		EpisodesFile: episodesFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
	Warnings   []error // Cover image failures; the export itself still succeeded
}

// WriteMarkdownExport exports a feed to Markdown format in a dedicated directory.
//
// Directory name defaults to [BaseName]. When the podcast has artwork it is downloaded with
// client into {dir}/cover.jpg; a failed download only adds a warning.
func WriteMarkdownExport(ctx context.Context, client *http.Client, feed *models.PodcastFeed, outputDir string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = BaseName(feed)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	p := podcastOf(feed)
	var coverImageFilename string
	if imageURL := p.Artwork(); imageURL != "" {
		imageData, err := DownloadImage(ctx, client, imageURL)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Errorf("failed to download cover image: %w", err))
		} else {
			coverImageFilename = "cover.jpg"
			coverImagePath := filepath.Join(outputDir, coverImageFilename)
			if err := os.WriteFile(coverImagePath, imageData, 0644); err != nil {
				result.Warnings = append(result.Warnings, fmt.Errorf("failed to save cover image: %w", err))
				coverImageFilename = ""
			} else {
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(feed, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a feed to plain text format.
//
// Defaults to {base}_episodes.txt as the filename.
func WriteTextExport(feed *models.PodcastFeed, path string) (string, error) {
	if path == "" {
		path = BaseName(feed) + "_episodes.txt"
	}

	textData, err := ExportToText(feed)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport exports a feed with its episodes as JSON.
//
// Defaults to {base}.json as the filename.
func WriteJSONExport(feed *models.PodcastFeed, path string) (string, error) {
	if path == "" {
		path = BaseName(feed) + ".json"
	}

	data, err := ExportToJSON(feed)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}

	return path, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
