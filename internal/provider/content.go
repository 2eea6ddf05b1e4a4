package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/docid"
	"github.com/tonimelisma/alipan-go/internal/rangeread"
	"github.com/tonimelisma/alipan-go/internal/upload"
)

// OpenRead returns a random-access handle on a file's content. Any failure
// to look the file up is reported as ErrNotFound.
func (p *Provider) OpenRead(ctx context.Context, documentID string) (*rangeread.Handle, error) {
	parts := docid.Decode(documentID)
	if parts.IsZero() || parts.IsRoot() {
		return nil, fmt.Errorf("provider: open %q: %w", documentID, ErrNotFound)
	}

	var size int64
	if item, ok := p.cachedItem(parts); ok {
		size = item.Size
	}

	h, err := rangeread.Open(ctx, rangeread.Options{
		HTTPClient: p.transferHTTP,
		Resolve: func(ctx context.Context) (*alipan.DownloadURL, error) {
			return p.remote.GetDownloadURL(ctx, parts.DriveID, parts.FileID)
		},
		Size:      size,
		UserAgent: p.userAgent,
		Logger:    p.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: open %q: %w: %w", documentID, ErrNotFound, err)
	}

	return h, nil
}

// Create makes an empty file named name under parentID and registers the
// upload session a following OpenWrite consumes. It returns the new
// document id.
func (p *Provider) Create(ctx context.Context, parentID, name string) (string, error) {
	parent := docid.Decode(parentID)
	if parent.IsZero() {
		return "", fmt.Errorf("provider: create in %q: %w", parentID, ErrNotFound)
	}

	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", fmt.Errorf("provider: create %q: %w", name, ErrInvalidName)
	}

	target, err := p.remote.CreateFile(ctx, parent.DriveID, parent.RemoteFileID(), name, p.checkNameMode)
	if err != nil {
		return "", fmt.Errorf("provider: create %q: %w: %w", name, ErrRemoteCreateFailed, err)
	}

	dirKey := parent.String()
	id := docid.Child(dirKey, target.FileID)

	p.sessions.Put(upload.Session{
		DocumentID: id,
		ParentID:   dirKey,
		DriveID:    parent.DriveID,
		FileID:     target.FileID,
		UploadID:   target.UploadID,
		UploadURL:  target.UploadURL,
	})

	p.logger.Info("document created",
		slog.String("document_id", id),
		slog.String("name", name),
	)

	p.invalidate(dirKey)

	return id, nil
}

// OpenWrite returns the writer for a document created by Create. The
// session is consumed: a second OpenWrite for the same id fails with
// upload.ErrNoUploadSession. When the upload completes the parent
// directory is invalidated and its topic notified; a failed upload
// changes nothing.
func (p *Provider) OpenWrite(documentID string) (*upload.Writer, error) {
	key := docid.Decode(documentID).String()

	s, ok := p.sessions.Take(key)
	if !ok {
		return nil, fmt.Errorf("provider: open %q for writing: %w", documentID, upload.ErrNoUploadSession)
	}

	opts := p.uploadOpts
	opts.OnComplete = func(s upload.Session, _ *alipan.Item) {
		p.invalidate(s.ParentID)
	}

	return upload.Start(p.submitter, p.remote, s, opts), nil
}

// invalidateAliases invalidates every other cached listing of the same
// remote folder as dirID. Search results carry a shortened id, so the
// folder may be cached under its full path instead.
func (p *Provider) invalidateAliases(dirID string) {
	dir := docid.Decode(dirID)
	if dir.IsZero() {
		return
	}

	folder := dir.RemoteFileID()

	for _, key := range p.cache.Keys() {
		if key == dirID {
			continue
		}

		other := docid.Decode(key)
		if other.DriveID == dir.DriveID && other.RemoteFileID() == folder {
			p.invalidate(key)
		}
	}
}

// Delete moves a document to the recycle bin and invalidates its parent.
func (p *Provider) Delete(ctx context.Context, documentID string) error {
	parts := docid.Decode(documentID)
	if parts.IsZero() || parts.IsRoot() {
		return fmt.Errorf("provider: delete %q: %w", documentID, ErrNotFound)
	}

	if err := p.remote.Trash(ctx, parts.DriveID, parts.FileID); err != nil {
		return fmt.Errorf("provider: delete %q: %w: %w", documentID, ErrRemoteDeleteFailed, err)
	}

	p.logger.Info("document deleted", slog.String("document_id", documentID))

	p.invalidate(parts.ParentID)
	p.invalidateAliases(parts.ParentID)
	p.cache.Invalidate(parts.String())

	if p.thumbs != nil {
		if err := p.thumbs.Remove(parts.String()); err != nil {
			p.logger.Debug("removing thumbnail", slog.String("error", err.Error()))
		}
	}

	return nil
}
