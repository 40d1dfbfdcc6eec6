// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/eduncan911/podcast"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// FixtureEpisode describes one item of a generated RSS feed.
type FixtureEpisode struct {
	GUID        string
	Title       string
	Description string
	AudioURL    string
	Seconds     int64
	Published   time.Time
}

// RSSFeed renders a podcast RSS document with the given channel description and items.
// Items with a zero Published time carry no pubDate.
func RSSFeed(t *testing.T, title, description string, episodes ...FixtureEpisode) []byte {
	t.Helper()

	built := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p := podcast.New(title, "https://example.com/"+title, description, &built, &built)
	p.AddImage("https://example.com/" + title + ".jpg")

	for _, ep := range episodes {
		item := podcast.Item{
			Title:       ep.Title,
			Description: ep.Description,
			Link:        "https://example.com/episodes/" + ep.GUID,
			GUID:        ep.GUID,
		}
		if !ep.Published.IsZero() {
			published := ep.Published
			item.AddPubDate(&published)
		}
		if ep.AudioURL != "" {
			item.AddEnclosure(ep.AudioURL, podcast.MP3, 1024)
		}
		if ep.Seconds > 0 {
			item.AddDuration(ep.Seconds)
		}
		if _, err := p.AddItem(item); err != nil {
			t.Fatalf("failed to add fixture item %q: %v", ep.Title, err)
		}
		// AddItem stamps the current time on undated items.
		if ep.Published.IsZero() {
			added := p.Items[len(p.Items)-1]
			added.PubDate = nil
			added.PubDateFormatted = ""
		}
	}

	return p.Bytes()
}

// Receive waits up to a second for the next value on ch.
func Receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("channel closed before a value arrived")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

// AssertClosed waits up to a second for ch to be closed, discarding values.
func AssertClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for channel to close")
			return
		}
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
