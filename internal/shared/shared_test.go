package shared

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTerm(t *testing.T) {
	tc := []struct {
		name string
		term string
		want string
	}{
		{name: "basic", term: "radiolab", want: "radiolab"},
		{name: "surrounding whitespace", term: "  radiolab \n", want: "radiolab"},
		{name: "keeps case", term: " RadioLab ", want: "RadioLab"},
		{name: "blank", term: "   ", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTerm(tt.term); got != tt.want {
				t.Errorf("NormalizeTerm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEpisodeGUID(t *testing.T) {
	t.Run("stable for the same item", func(t *testing.T) {
		a := EpisodeGUID("https://example.com/rss", "Episode 1", "https://example.com/1.mp3")
		b := EpisodeGUID("https://example.com/rss", "Episode 1", "https://example.com/1.mp3")
		assert.Equal(t, a, b)

		_, err := uuid.Parse(a)
		assert.NoError(t, err)
	})

	t.Run("differs across feeds", func(t *testing.T) {
		a := EpisodeGUID("https://a.example.com/rss", "Episode 1")
		b := EpisodeGUID("https://b.example.com/rss", "Episode 1")
		assert.NotEqual(t, a, b)
	})

	t.Run("random without fields", func(t *testing.T) {
		a := EpisodeGUID("https://example.com/rss", "", " ")
		b := EpisodeGUID("https://example.com/rss", "", " ")
		assert.NotEqual(t, a, b)
	})
}

func TestLogger(t *testing.T) {
	t.Run("NewLogger writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "component", "test").Info("hello")

		assert.Contains(t, buf.String(), "hello")
		assert.Contains(t, buf.String(), "component=test")
	})

	t.Run("SetLogLevel filters lower levels", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		SetLogLevel(logger, ParseLogLevel("warn"))
		logger.Info("quiet")

		assert.Empty(t, buf.String())
	})

	t.Run("ParseLogLevel defaults to info", func(t *testing.T) {
		assert.Equal(t, log.InfoLevel, ParseLogLevel("loud"))
		assert.Equal(t, log.DebugLevel, ParseLogLevel(" DEBUG "))
	})

	t.Run("NewFileLogger creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "podx.log")
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Info("written")
		assert.FileExists(t, path)
	})
}
