package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/docid"
)

// ListChildren returns the children of a folder or drive root. Ids on a
// drive other than the account's two are ErrNotFound. A cached
// directory is served as is; otherwise the result is an empty loading
// listing, a background fill is started, and the directory's topic is
// notified when the fill lands. A failed fill is logged and leaves the
// directory uncached, so the next query retries.
func (p *Provider) ListChildren(ctx context.Context, parentID string) (Listing, error) {
	parent := docid.Decode(parentID)
	if parent.IsZero() {
		return Listing{}, fmt.Errorf("provider: listing %q: %w", parentID, ErrNotFound)
	}

	if err := p.checkDrive(ctx, "listing", parentID, parent); err != nil {
		return Listing{}, err
	}

	key := parent.String()
	out := Listing{Topic: key}

	if items, ok := p.cache.Get(key); ok {
		out.Documents = itemDocuments(key, items)

		return out, nil
	}

	p.startFill(parent)
	out.Loading = true

	return out, nil
}

// startFill schedules a listing of dir unless one is already running.
func (p *Provider) startFill(dir docid.Parts) {
	key := dir.String()

	fill, ok := p.cache.BeginFill(key)
	if !ok {
		return
	}

	p.submitter.Submit("list", func(ctx context.Context) error {
		items, err := p.aggregator.ListAll(ctx, dir.DriveID, dir.RemoteFileID())
		if err != nil {
			fill.Abort()

			level := slog.LevelWarn
			if notLoggedIn(err) {
				level = slog.LevelDebug
			}

			p.logger.Log(ctx, level, "directory listing failed",
				slog.String("document_id", key),
				slog.String("error", err.Error()),
			)

			return err
		}

		if fill.Commit(items) {
			p.notifier.Notify(key)
		}

		return nil
	})
}

// Fetch is the blocking form of ListChildren for callers without a
// notification channel. A cached directory costs nothing; otherwise the
// listing is drained now, cached, and any error is returned.
func (p *Provider) Fetch(ctx context.Context, parentID string) (Listing, error) {
	parent := docid.Decode(parentID)
	if parent.IsZero() {
		return Listing{}, fmt.Errorf("provider: listing %q: %w", parentID, ErrNotFound)
	}

	if err := p.checkDrive(ctx, "listing", parentID, parent); err != nil {
		return Listing{}, err
	}

	key := parent.String()

	if items, ok := p.cache.Get(key); ok {
		return Listing{Topic: key, Documents: itemDocuments(key, items)}, nil
	}

	fill, ok := p.cache.BeginFill(key)

	items, err := p.aggregator.ListAll(ctx, parent.DriveID, parent.RemoteFileID())
	if err != nil {
		if ok {
			fill.Abort()
		}

		return Listing{}, fmt.Errorf("provider: listing %q: %w", key, err)
	}

	if ok {
		fill.Commit(items)
	}

	return Listing{Topic: key, Documents: itemDocuments(key, items)}, nil
}

// Stat returns the metadata row for a document. Drive roots and items in a
// cached directory are answered locally; anything else costs one metadata
// call.
func (p *Provider) Stat(ctx context.Context, documentID string) (*Document, error) {
	parts := docid.Decode(documentID)
	if parts.IsZero() {
		return nil, fmt.Errorf("provider: stat %q: %w", documentID, ErrNotFound)
	}

	if err := p.checkDrive(ctx, "stat", documentID, parts); err != nil {
		return nil, err
	}

	if parts.IsRoot() {
		drives, err := p.knownDrives(ctx)
		if err != nil {
			return nil, err
		}

		doc := drives.rootDocument(parts.DriveID)

		return &doc, nil
	}

	if item, ok := p.cachedItem(parts); ok {
		doc := itemDocument(parts.ParentID, &item)

		return &doc, nil
	}

	item, err := p.remote.GetFile(ctx, parts.DriveID, parts.FileID)
	if err != nil {
		if errors.Is(err, alipan.ErrNotFound) {
			return nil, fmt.Errorf("provider: stat %q: %w: %w", documentID, ErrNotFound, err)
		}

		return nil, fmt.Errorf("provider: stat %q: %w", documentID, err)
	}

	doc := itemDocument(parts.ParentID, item)

	return &doc, nil
}

// cachedItem looks parts up in its parent's snapshot.
func (p *Provider) cachedItem(parts docid.Parts) (alipan.Item, bool) {
	items, ok := p.cache.Get(parts.ParentID)
	if !ok {
		return alipan.Item{}, false
	}

	for i := range items {
		if items[i].FileID == parts.FileID {
			return items[i], true
		}
	}

	return alipan.Item{}, false
}
