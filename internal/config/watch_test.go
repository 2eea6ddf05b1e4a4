package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeTestConfig(t, "[listing]\npage_size = 10\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(cfg, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, h, slog.Default(), func(c *Config) { reloaded <- c })
	}()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("[listing]\npage_size = 42\n"), 0o600); err != nil {
			return false
		}

		select {
		case c := <-reloaded:
			return c.Listing.PageSize == 42
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, 42, h.Config().Listing.PageSize)

	cancel()
	require.NoError(t, <-done)
}

func TestReload_InvalidFileKeepsPrevious(t *testing.T) {
	path := writeTestConfig(t, "[listing]\npage_size = 10\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	h := NewHolder(cfg, path)

	require.NoError(t, os.WriteFile(path, []byte("[listing]\npage_size = 0\n"), 0o600))

	called := false
	reload(h, slog.Default(), func(*Config) { called = true })

	assert.False(t, called)
	assert.Equal(t, 10, h.Config().Listing.PageSize)
}

func TestWatch_EmptyPathReturns(t *testing.T) {
	h := NewHolder(DefaultConfig(), "")
	require.NoError(t, Watch(context.Background(), h, slog.Default(), nil))
}
