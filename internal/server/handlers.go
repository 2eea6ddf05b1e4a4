package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tonimelisma/alipan-go/internal/provider"
)

// maxCreateBody bounds the JSON body of a create request.
const maxCreateBody = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoots(w http.ResponseWriter, r *http.Request) {
	listing, err := s.facade.ListRoots(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleStat(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	doc, err := s.facade.Stat(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleChildren(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	listing, err := s.facade.ListChildren(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, listing)
}

// handleRead serves file content with Range support. The span is fetched
// upstream in blocks of readAheadSize, capped at the requested range.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	h, err := s.facade.OpenRead(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}
	defer h.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	size := h.Size()
	br := newBlockReader(h.ReaderAt(r.Context()), size, rangeEnd(r, size), readAheadSize)
	http.ServeContent(w, r, "", time.Time{}, io.NewSectionReader(br, 0, size))
}

// handleWrite streams the request body into the upload for a document
// created by POST /v1/create, and answers once the remote file is
// complete.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	wr, err := s.facade.OpenWrite(id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	n, err := io.Copy(wr, r.Body)
	if err != nil {
		wr.Abort(err)
		_ = wr.CloseWrite()

		if waitErr := wr.Wait(r.Context()); waitErr != nil {
			err = errors.Join(err, waitErr)
		}

		s.writeError(w, fmt.Errorf("receiving content: %w", err))

		return
	}

	if err := wr.CloseWrite(); err != nil {
		s.writeError(w, err)

		return
	}

	if err := wr.Wait(r.Context()); err != nil {
		s.writeError(w, err)

		return
	}

	s.logger.Debug("content uploaded", slog.String("document_id", id), slog.Int64("bytes", n))
	w.WriteHeader(http.StatusNoContent)
}

type createRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

type createResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest

	dec := json.NewDecoder(io.LimitReader(r.Body, maxCreateBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: decoding body: %w", errBadRequest, err))

		return
	}

	if req.ParentID == "" {
		s.writeError(w, fmt.Errorf("%w: missing parent_id", errBadRequest))

		return
	}

	id, err := s.facade.Create(r.Context(), req.ParentID, req.Name)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	if err := s.facade.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type searchResponse struct {
	Documents []provider.Document `json:"documents"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	root, err := requireParam(r, "root")
	if err != nil {
		s.writeError(w, err)

		return
	}

	q, err := requireParam(r, "q")
	if err != nil {
		s.writeError(w, err)

		return
	}

	docs, err := s.facade.Search(r.Context(), root, q)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, searchResponse{Documents: docs})
}

type pendingResponse struct {
	Pending bool   `json:"pending"`
	Topic   string `json:"topic"`
}

// handleThumbnail serves a cached thumbnail, or 202 while it is fetched.
// The document's topic is notified once it can be served.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	f, err := s.facade.Thumbnail(r.Context(), id)
	if errors.Is(err, provider.ErrThumbnailPending) {
		s.writeJSON(w, http.StatusAccepted, pendingResponse{Pending: true, Topic: id})

		return
	}

	if err != nil {
		s.writeError(w, err)

		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		s.writeError(w, err)

		return
	}

	http.ServeContent(w, r, "", st.ModTime(), f)
}

type isChildResponse struct {
	IsChild bool `json:"is_child"`
}

func (s *Server) handleIsChild(w http.ResponseWriter, r *http.Request) {
	parent, err := requireParam(r, "parent")
	if err != nil {
		s.writeError(w, err)

		return
	}

	id, err := requireParam(r, "id")
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, isChildResponse{IsChild: s.facade.IsChild(parent, id)})
}
