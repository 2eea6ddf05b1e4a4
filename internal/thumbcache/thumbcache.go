// Package thumbcache keeps document thumbnails on local disk. A miss
// schedules a background download and reports the thumbnail as pending.
package thumbcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/tasks"
)

// File and directory permissions for cached thumbnails.
const (
	filePerms = 0o644
	dirPerms  = 0o700
)

// maxThumbnailBytes bounds a single thumbnail download.
const maxThumbnailBytes = 10 << 20

// fileSuffix is appended to the escaped document id to form the cache file name.
const fileSuffix = ".thumbnail"

// Sentinel errors. Use errors.Is to check.
var (
	// ErrPending means the thumbnail is being fetched; ask again after the
	// document's topic is notified.
	ErrPending = errors.New("thumbcache: thumbnail pending")

	// ErrNoThumbnail means the remote item has no thumbnail.
	ErrNoThumbnail = errors.New("thumbcache: no thumbnail")
)

// Options configures a Cache.
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	// OnReady runs after a thumbnail for key has been stored.
	OnReady func(key string)
	Logger  *slog.Logger
}

// Cache is an on-disk thumbnail cache keyed by document id.
type Cache struct {
	dir        string
	submitter  tasks.Submitter
	httpClient *http.Client
	userAgent  string
	onReady    func(key string)
	logger     *slog.Logger

	group singleflight.Group
}

// New creates a cache rooted at dir. Downloads run on submitter.
func New(dir string, submitter tasks.Submitter, opts Options) *Cache {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.UserAgent == "" {
		opts.UserAgent = alipan.DefaultUserAgent
	}

	return &Cache{
		dir:        dir,
		submitter:  submitter,
		httpClient: opts.HTTPClient,
		userAgent:  opts.UserAgent,
		onReady:    opts.OnReady,
		logger:     opts.Logger,
	}
}

// Path returns the cache file path for key.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, url.PathEscape(key)+fileSuffix)
}

// Open returns the cached thumbnail for key. On a miss it schedules a
// download of thumbURL and returns ErrPending.
func (c *Cache) Open(key, thumbURL string) (*os.File, error) {
	path := c.Path(key)

	f, err := os.Open(path)
	if err == nil {
		if st, statErr := f.Stat(); statErr == nil && st.Size() > 0 {
			return f, nil
		}

		f.Close()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("thumbcache: opening %s: %w", path, err)
	}

	if thumbURL == "" {
		return nil, ErrNoThumbnail
	}

	c.submitter.Submit("thumbnail", func(ctx context.Context) error {
		_, err, shared := c.group.Do(path, func() (any, error) {
			return nil, c.download(ctx, thumbURL, path)
		})
		if err != nil {
			c.logger.Warn("thumbnail download failed",
				slog.String("document_id", key),
				slog.String("error", err.Error()),
			)

			return err
		}

		if !shared && c.onReady != nil {
			c.onReady(key)
		}

		return nil
	})

	return nil, ErrPending
}

// Remove deletes the cached thumbnail for key, if any.
func (c *Cache) Remove(key string) error {
	err := os.Remove(c.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("thumbcache: removing: %w", err)
	}

	return nil
}

// download fetches thumbURL and stores it at path atomically
// (write-to-temp + rename), so readers never see a partial image.
func (c *Cache) download(ctx context.Context, thumbURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("thumbcache: creating request: %w", err)
	}

	req.Header.Set("Referer", alipan.Referer)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("thumbcache: fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("thumbcache: fetching: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.dir, dirPerms); err != nil {
		return fmt.Errorf("thumbcache: creating directory %s: %w", c.dir, err)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(c.dir, ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("thumbcache: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxThumbnailBytes))
	if err != nil {
		tmp.Close()

		return fmt.Errorf("thumbcache: writing: %w", err)
	}

	if n == 0 {
		tmp.Close()

		return errors.New("thumbcache: empty thumbnail")
	}

	if err := tmp.Chmod(filePerms); err != nil {
		tmp.Close()

		return fmt.Errorf("thumbcache: setting permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("thumbcache: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("thumbcache: renaming: %w", err)
	}

	success = true

	c.logger.Debug("thumbnail cached", slog.String("path", path), slog.Int64("bytes", n))

	return nil
}
