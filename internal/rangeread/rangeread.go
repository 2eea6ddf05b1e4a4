// Package rangeread presents a remote file as a fixed-size, randomly
// readable handle. Every read is one HTTP range request against a signed
// download URL; no bytes are cached between reads.
package rangeread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// urlRefreshMargin re-resolves a signed URL this long before it expires.
const urlRefreshMargin = 30 * time.Second

// ErrDownloadFailed is returned for a read whose range request was
// answered with a non-2xx status or failed mid-stream. The handle stays
// usable for other reads.
var ErrDownloadFailed = errors.New("rangeread: download failed")

// Resolver issues a fresh signed download URL for the file.
type Resolver func(ctx context.Context) (*alipan.DownloadURL, error)

// Options configures Open.
type Options struct {
	HTTPClient *http.Client
	Resolve    Resolver
	// Size is used when the download URL response does not carry one.
	Size      int64
	UserAgent string
	Logger    *slog.Logger
}

// Handle is a random-access view of one remote file. Safe for concurrent
// reads; reads at different offsets do not serialize on each other.
type Handle struct {
	httpClient *http.Client
	resolve    Resolver
	userAgent  string
	logger     *slog.Logger
	size       int64
	now        func() time.Time

	closeCtx context.Context
	closeFn  context.CancelFunc

	mu         sync.Mutex
	url        string
	expiration time.Time
	closed     bool
}

// Open resolves the download URL once and returns a handle.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	if opts.Resolve == nil {
		return nil, errors.New("rangeread: no URL resolver")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.UserAgent == "" {
		opts.UserAgent = alipan.DefaultUserAgent
	}

	du, err := opts.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("rangeread: resolving download URL: %w", err)
	}

	size := du.Size
	if size <= 0 {
		size = opts.Size
	}

	closeCtx, closeFn := context.WithCancel(context.Background())

	return &Handle{
		httpClient: opts.HTTPClient,
		resolve:    opts.Resolve,
		userAgent:  opts.UserAgent,
		logger:     opts.Logger,
		size:       size,
		now:        time.Now,
		closeCtx:   closeCtx,
		closeFn:    closeFn,
		url:        du.URL,
		expiration: du.Expiration,
	}, nil
}

// Size returns the file's total size in bytes.
func (h *Handle) Size() int64 {
	return h.size
}

// ReadRange fills p with bytes starting at off. A short count with a nil
// error means the remote stream ended early; callers treat it as the end of
// the extent. Reads at or past Size return 0, nil.
func (h *Handle) ReadRange(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("rangeread: negative offset %d", off)
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return 0, os.ErrClosed
	}

	if len(p) == 0 || off >= h.size {
		return 0, nil
	}

	length := int64(len(p))
	if remain := h.size - off; length > remain {
		length = remain
	}

	// Close aborts reads that are still on the wire.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(h.closeCtx, cancel)
	defer stop()

	n, err := h.readOnce(ctx, p[:length], off, false)

	metrics.RecordRangeRead(n, err == nil)

	return n, err
}

func (h *Handle) readOnce(ctx context.Context, p []byte, off int64, refreshed bool) (int, error) {
	url, err := h.currentURL(ctx, false)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("rangeread: creating request: %w", err)
	}

	req.Header.Set("Range", "bytes="+strconv.FormatInt(off, 10)+"-"+strconv.FormatInt(off+int64(len(p))-1, 10))
	req.Header.Set("Referer", alipan.Referer)
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	// Signed URLs expire; a 403 gets one retry with a freshly issued URL.
	if resp.StatusCode == http.StatusForbidden && !refreshed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

		if _, err := h.currentURL(ctx, true); err != nil {
			return 0, err
		}

		return h.readOnce(ctx, p, off, true)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range header; skip to the offset.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}

			return 0, fmt.Errorf("%w: skipping to offset: %w", ErrDownloadFailed, err)
		}
	default:
		h.logger.Warn("range request failed",
			slog.Int("status", resp.StatusCode),
			slog.Int64("offset", off),
			slog.Int("length", len(p)),
		)

		return 0, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}

	if err != nil {
		return n, fmt.Errorf("%w: reading body: %w", ErrDownloadFailed, err)
	}

	return n, nil
}

// currentURL returns a usable signed URL, resolving a new one when forced
// or when the current one is about to expire.
func (h *Handle) currentURL(ctx context.Context, force bool) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	stale := !h.expiration.IsZero() && h.now().Add(urlRefreshMargin).After(h.expiration)
	if !force && !stale {
		return h.url, nil
	}

	du, err := h.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("rangeread: re-resolving download URL: %w", err)
	}

	h.logger.Debug("download URL refreshed", slog.Bool("forced", force))

	h.url = du.URL
	h.expiration = du.Expiration

	return h.url, nil
}

// Close releases the handle and aborts reads in flight.
func (h *Handle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.closeFn()

	return nil
}

// ReaderAt adapts the handle to io.ReaderAt, reporting short reads as
// io.EOF as that interface requires.
func (h *Handle) ReaderAt(ctx context.Context) io.ReaderAt {
	return readerAt{h: h, ctx: ctx}
}

type readerAt struct {
	h   *Handle
	ctx context.Context
}

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.h.ReadRange(r.ctx, p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}

	return n, err
}
