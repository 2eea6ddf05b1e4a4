package provider

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/docid"
	"github.com/tonimelisma/alipan-go/internal/thumbcache"
)

// ErrNoThumbnail is returned by Thumbnail for documents without one.
var ErrNoThumbnail = thumbcache.ErrNoThumbnail

// ErrThumbnailPending is returned by Thumbnail while the image is being
// fetched; the document's topic is notified when it is ready.
var ErrThumbnailPending = thumbcache.ErrPending

// Search matches names in the drive behind rootID. Only the first page of
// results is returned.
//
// Results carry the id <drive>/<parent>/<file> built from the immediate
// parent, since the search API does not return the full ancestry.
func (p *Provider) Search(ctx context.Context, rootID, query string) ([]Document, error) {
	drives, err := p.ResolveDrives(ctx)
	if err != nil {
		return nil, err
	}

	driveID, ok := drives.byRoot(rootID)
	if !ok {
		return nil, fmt.Errorf("provider: search root %q: %w", rootID, ErrNotFound)
	}

	page, err := p.remote.SearchFiles(ctx, driveID, norm.NFC.String(query), p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("provider: search %q: %w", query, err)
	}

	docs := make([]Document, 0, len(page.Items))

	for i := range page.Items {
		item := &page.Items[i]

		parentID := driveID
		if item.ParentFileID != "" && item.ParentFileID != alipan.RootFileID {
			parentID = docid.Child(driveID, item.ParentFileID)
		}

		docs = append(docs, itemDocument(parentID, item))
	}

	return docs, nil
}

// Thumbnail returns the locally cached thumbnail for a document. On a miss
// it starts a background download and returns ErrThumbnailPending.
func (p *Provider) Thumbnail(ctx context.Context, documentID string) (*os.File, error) {
	if p.thumbs == nil {
		return nil, ErrNoThumbnail
	}

	parts := docid.Decode(documentID)
	if parts.IsZero() || parts.IsRoot() {
		return nil, fmt.Errorf("provider: thumbnail %q: %w", documentID, ErrNotFound)
	}

	key := parts.String()

	f, err := p.thumbs.Open(key, "")
	if err == nil || !errors.Is(err, ErrNoThumbnail) {
		return f, err
	}

	doc, err := p.Stat(ctx, key)
	if err != nil {
		return nil, err
	}

	return p.thumbs.Open(key, doc.thumbnailURL)
}
