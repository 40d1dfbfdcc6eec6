// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// episodeNamespace scopes derived episode guids so they never collide with v4 ids.
var episodeNamespace = uuid.MustParse("6f1c1e4a-3b0e-4c59-9a43-2f7a5c1d9e10")

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that appends to the file at path, creating parent directories.
func NewFileLogger(path string) (*log.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(f), nil
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// ParseLogLevel converts a config level name to a [log.Level], defaulting to info.
func ParseLogLevel(level string) log.Level {
	ll, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return ll
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// EpisodeGUID derives a stable identifier for a feed item that carries no guid.
//
// The same feed URL and item fields always produce the same id so repeated syncs replace
// the row instead of duplicating it. With nothing to derive from, a random id is returned.
func EpisodeGUID(feedURL string, fields ...string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(strings.TrimSpace(f))
		b.WriteByte('\x1f')
	}
	if strings.Trim(b.String(), "\x1f") == "" {
		return GenerateID()
	}
	return uuid.NewSHA1(episodeNamespace, []byte(feedURL+"\x1e"+b.String())).String()
}

// NormalizeTerm returns the cache key for a search term. Only surrounding whitespace is
// removed; case is kept so the key matches the query sent to the directory.
func NormalizeTerm(term string) string {
	return strings.TrimSpace(term)
}
