// Package server binds the document tree facade to HTTP so that a host
// outside the process can browse, read and write the drives. Change
// notifications are pushed over a WebSocket.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/tonimelisma/alipan-go/internal/metrics"
	"github.com/tonimelisma/alipan-go/internal/notify"
	"github.com/tonimelisma/alipan-go/internal/provider"
	"github.com/tonimelisma/alipan-go/internal/rangeread"
	"github.com/tonimelisma/alipan-go/internal/session"
	"github.com/tonimelisma/alipan-go/internal/upload"
)

// Server timeouts. Content routes stream for as long as the transfer takes,
// so there is no write timeout.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// Facade is the document tree the server exposes.
type Facade interface {
	ListRoots(ctx context.Context) (provider.Listing, error)
	Stat(ctx context.Context, documentID string) (*provider.Document, error)
	ListChildren(ctx context.Context, parentID string) (provider.Listing, error)
	OpenRead(ctx context.Context, documentID string) (*rangeread.Handle, error)
	OpenWrite(documentID string) (*upload.Writer, error)
	Create(ctx context.Context, parentID, name string) (string, error)
	Delete(ctx context.Context, documentID string) error
	Search(ctx context.Context, rootID, query string) ([]provider.Document, error)
	Thumbnail(ctx context.Context, documentID string) (*os.File, error)
	IsChild(parentID, documentID string) bool
}

// Server serves the HTTP binding.
type Server struct {
	facade Facade
	events *notify.Broadcaster
	logger *slog.Logger
}

// New creates a Server. Events feed the notifications endpoint.
func New(facade Facade, events *notify.Broadcaster, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{facade: facade, events: events, logger: logger}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /v1/roots", s.handleRoots)
	mux.HandleFunc("GET /v1/document", s.handleStat)
	mux.HandleFunc("DELETE /v1/document", s.handleDelete)
	mux.HandleFunc("GET /v1/children", s.handleChildren)
	mux.HandleFunc("GET /v1/content", s.handleRead)
	mux.HandleFunc("PUT /v1/content", s.handleWrite)
	mux.HandleFunc("POST /v1/create", s.handleCreate)
	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/thumbnail", s.handleThumbnail)
	mux.HandleFunc("GET /v1/is-child", s.handleIsChild)
	mux.HandleFunc("GET /v1/notifications", s.handleNotifications)

	return s.logRequests(mux)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)

	go func() {
		errc <- srv.Serve(ln)
	}()

	s.logger.Info("server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutting down: %w", err)
	}

	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}

	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols

	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("writing response", slog.String("error", err.Error()))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps err onto a status code and writes it as JSON.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, provider.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, provider.ErrNotFound), errors.Is(err, provider.ErrNoThumbnail):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrNoUploadSession):
		return http.StatusConflict
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, provider.ErrRemoteCreateFailed),
		errors.Is(err, provider.ErrRemoteDeleteFailed),
		errors.Is(err, upload.ErrUploadFailed),
		errors.Is(err, rangeread.ErrDownloadFailed),
		errors.Is(err, session.ErrCredentialExchangeFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// requireParam returns a query parameter or a bad-request error.
func requireParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: missing %q parameter", errBadRequest, name)
	}

	return v, nil
}
