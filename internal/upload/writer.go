// Package upload turns a push-style write stream into the service's
// create / PUT / complete sequence.
//
// The part upload needs a Content-Length up front, so the payload is
// accumulated in memory before the single PUT is issued. Writes reach the
// accumulating task through a bounded channel, which gives the writer
// backpressure while the task is busy or not yet scheduled.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/metrics"
	"github.com/tonimelisma/alipan-go/internal/tasks"
)

// Defaults for Options.
const (
	DefaultBufferChunks = 16
	DefaultMaxSize      = 4 << 30 // 4 GiB
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrUploadFailed wraps any failure of the PUT or the completion call.
	ErrUploadFailed = errors.New("upload: upload failed")

	// ErrNoUploadSession means a write was opened for a document that was
	// not just created.
	ErrNoUploadSession = errors.New("upload: no upload session")

	// ErrTooLarge means the payload outgrew Options.MaxSize.
	ErrTooLarge = errors.New("upload: payload exceeds maximum upload size")
)

// Remote is the part of the API client the upload needs.
type Remote interface {
	UploadPart(ctx context.Context, uploadURL string, data []byte) error
	CompleteUpload(ctx context.Context, driveID, fileID, uploadID string) (*alipan.Item, error)
}

// Options configures a Writer.
type Options struct {
	BufferChunks int
	MaxSize      int64
	// OnComplete runs after the remote file is finalized, and only then.
	OnComplete func(s Session, item *alipan.Item)
	Logger     *slog.Logger
}

// Writer is the writable end of one upload. Write may be called from
// several goroutines; CloseWrite and Close must be called once the last
// Write has returned.
type Writer struct {
	session Session
	remote  Remote
	opts    Options
	logger  *slog.Logger

	chunks chan []byte
	abort  chan struct{}
	task   *tasks.Task

	mu        sync.RWMutex
	closed    bool
	abortOnce sync.Once
	abortErr  error
}

// Start begins an upload for s: it submits the draining task and returns
// the writer feeding it.
func Start(submitter tasks.Submitter, remote Remote, s Session, opts Options) *Writer {
	if opts.BufferChunks <= 0 {
		opts.BufferChunks = DefaultBufferChunks
	}

	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	w := &Writer{
		session: s,
		remote:  remote,
		opts:    opts,
		logger:  opts.Logger,
		chunks:  make(chan []byte, opts.BufferChunks),
		abort:   make(chan struct{}),
	}

	w.task = submitter.Submit("upload", w.drain)

	return w
}

// Write queues a copy of p for upload.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}

	select {
	case <-w.task.Done():
		return 0, w.failure()
	default:
	}

	if len(p) == 0 {
		return 0, nil
	}

	chunk := make([]byte, len(p))
	copy(chunk, p)

	select {
	case w.chunks <- chunk:
		return len(p), nil
	case <-w.task.Done():
		return 0, w.failure()
	}
}

func (w *Writer) failure() error {
	if err := w.task.Err(); err != nil {
		return err
	}

	return fmt.Errorf("%w: upload ended before all data was written", ErrUploadFailed)
}

// CloseWrite marks the end of the data. The upload proceeds in the
// background; Wait reports its outcome.
func (w *Writer) CloseWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.chunks)

	return nil
}

// Wait blocks until the upload finishes or ctx is done.
func (w *Writer) Wait(ctx context.Context) error {
	return w.task.Await(ctx)
}

// Close ends the data and waits for the upload to finish.
func (w *Writer) Close() error {
	if err := w.CloseWrite(); err != nil {
		return err
	}

	return w.Wait(context.Background())
}

// Abort abandons the upload without sending anything. Nothing is
// invalidated and the remote file is never completed.
func (w *Writer) Abort(reason error) {
	w.abortOnce.Do(func() {
		w.abortErr = reason
		close(w.abort)
	})
}

// Task returns the background task running the upload.
func (w *Writer) Task() *tasks.Task {
	return w.task
}

// drain accumulates chunks until the writer closes, then uploads.
func (w *Writer) drain(ctx context.Context) error {
	var buf bytes.Buffer

	for {
		select {
		case chunk, ok := <-w.chunks:
			if !ok {
				return w.finish(ctx, buf.Bytes())
			}

			if int64(buf.Len()+len(chunk)) > w.opts.MaxSize {
				metrics.RecordUpload(0, false)

				return fmt.Errorf("%w: %w (limit %d bytes)", ErrUploadFailed, ErrTooLarge, w.opts.MaxSize)
			}

			buf.Write(chunk)
		case <-w.abort:
			metrics.RecordUpload(0, false)

			return fmt.Errorf("%w: aborted: %w", ErrUploadFailed, w.abortErr)
		case <-ctx.Done():
			metrics.RecordUpload(0, false)

			return fmt.Errorf("%w: %w", ErrUploadFailed, ctx.Err())
		}
	}
}

func (w *Writer) finish(ctx context.Context, data []byte) error {
	s := w.session

	if err := w.remote.UploadPart(ctx, s.UploadURL, data); err != nil {
		metrics.RecordUpload(0, false)
		w.logger.Warn("part upload failed",
			slog.String("document_id", s.DocumentID),
			slog.Int("bytes", len(data)),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: uploading content: %w", ErrUploadFailed, err)
	}

	item, err := w.remote.CompleteUpload(ctx, s.DriveID, s.FileID, s.UploadID)
	if err != nil {
		metrics.RecordUpload(0, false)
		w.logger.Warn("completing upload failed",
			slog.String("document_id", s.DocumentID),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: completing upload: %w", ErrUploadFailed, err)
	}

	metrics.RecordUpload(int64(len(data)), true)
	w.logger.Info("upload completed",
		slog.String("document_id", s.DocumentID),
		slog.Int("bytes", len(data)),
	)

	if w.opts.OnComplete != nil {
		w.opts.OnComplete(s, item)
	}

	return nil
}
