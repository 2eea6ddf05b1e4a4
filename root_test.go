package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/alipan-go/internal/config"
	"github.com/tonimelisma/alipan-go/internal/provider"
)

// newRootCmd rebinds the flag globals to their defaults, so tests set them
// after building the command, and restore them when done.
func setLogFlags(t *testing.T, verbose, debug, quiet bool) {
	t.Helper()

	oldVerbose, oldDebug, oldQuiet := flagVerbose, flagDebug, flagQuiet
	t.Cleanup(func() {
		flagVerbose, flagDebug, flagQuiet = oldVerbose, oldDebug, oldQuiet
	})

	flagVerbose, flagDebug, flagQuiet = verbose, debug, quiet
}

func TestLogLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Logging.LogLevel = "error"

	tests := []struct {
		name                  string
		cfg                   *config.Config
		verbose, debug, quiet bool
		want                  slog.Level
	}{
		{"no config", nil, false, false, false, slog.LevelWarn},
		{"config", cfg, false, false, false, slog.LevelError},
		{"verbose beats config", cfg, true, false, false, slog.LevelInfo},
		{"debug beats verbose", cfg, true, true, false, slog.LevelDebug},
		{"quiet", nil, false, false, true, slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLogFlags(t, tt.verbose, tt.debug, tt.quiet)
			assert.Equal(t, tt.want, logLevel(tt.cfg))
		})
	}
}

func TestNewLogHandler_Format(t *testing.T) {
	tests := []struct {
		format   string
		terminal bool
		json     bool
	}{
		{"auto", true, false},
		{"auto", false, true},
		{"text", false, false},
		{"json", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(newLogHandler(&buf, tt.format, slog.LevelInfo, tt.terminal))
			logger.Info("hello")

			assert.Equal(t, tt.json, strings.HasPrefix(buf.String(), "{"), buf.String())
		})
	}
}

func TestNewLogHandler_Level(t *testing.T) {
	h := newLogHandler(&bytes.Buffer{}, "text", slog.LevelWarn, true)

	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
}

func TestReadToken(t *testing.T) {
	tok, err := readToken(strings.NewReader("\n  abc123  \nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", tok)

	_, err = readToken(strings.NewReader("\n\n"))
	require.Error(t, err)
}

func TestByteRange(t *testing.T) {
	tests := []struct {
		name                 string
		size, offset, length int64
		start, end           int64
		wantErr              bool
	}{
		{"whole file", 10, 0, 0, 0, 10, false},
		{"tail", 10, 4, 0, 4, 10, false},
		{"window", 10, 2, 3, 2, 5, false},
		{"length past end", 10, 8, 100, 8, 10, false},
		{"offset at end", 10, 10, 0, 10, 10, false},
		{"offset past end", 10, 11, 0, 0, 0, true},
		{"negative", 10, -1, 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := byteRange(tt.size, tt.offset, tt.length)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestSortDocuments_FoldersFirst(t *testing.T) {
	docs := []provider.Document{
		{Name: "b.txt"},
		{Name: "z", MimeType: provider.MimeTypeDirectory},
		{Name: "a.txt"},
		{Name: "m", MimeType: provider.MimeTypeDirectory},
	}

	sortDocuments(docs)

	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}

	assert.Equal(t, []string{"m", "z", "a.txt", "b.txt"}, names)
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"login", "logout", "drives", "ls", "stat", "get", "put", "rm", "search", "serve", "config"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}
