// Package listing drains the remote paginated folder listing into one
// complete, ordered snapshot.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// DefaultMaxPages bounds how many pages one listing may take before the
// remote side is considered to be looping.
const DefaultMaxPages = 1000

// ErrListingTruncated is returned when the remote API keeps returning a
// cursor after MaxPages pages.
var ErrListingTruncated = errors.New("listing: pagination did not terminate")

// PageLister fetches one page of a folder's children.
type PageLister interface {
	ListFiles(ctx context.Context, driveID, parentFileID, marker string, pageSize int) (*alipan.Page, error)
}

// Aggregator drains paginated listings.
type Aggregator struct {
	lister   PageLister
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator. pageSize 0 uses the API default and
// maxPages 0 uses DefaultMaxPages.
func NewAggregator(lister PageLister, pageSize, maxPages int, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}

	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	return &Aggregator{
		lister:   lister,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// ListAll returns every child of folderID in page-concatenation order.
// Items are not re-sorted.
func (a *Aggregator) ListAll(ctx context.Context, driveID, folderID string) ([]alipan.Item, error) {
	start := time.Now()

	var (
		all    []alipan.Item
		marker string
	)

	for page := 1; page <= a.maxPages; page++ {
		p, err := a.lister.ListFiles(ctx, driveID, folderID, marker, a.pageSize)
		if err != nil {
			return nil, fmt.Errorf("listing: page %d of %s/%s: %w", page, driveID, folderID, err)
		}

		all = append(all, p.Items...)

		if p.NextMarker == "" {
			metrics.RecordListing(page, time.Since(start))
			a.logger.Debug("listed folder",
				slog.String("drive_id", driveID),
				slog.String("folder_id", folderID),
				slog.Int("pages", page),
				slog.Int("items", len(all)),
			)

			return all, nil
		}

		marker = p.NextMarker
	}

	a.logger.Warn("listing exceeded page cap",
		slog.String("drive_id", driveID),
		slog.String("folder_id", folderID),
		slog.Int("max_pages", a.maxPages),
		slog.Int("items", len(all)),
	)

	return nil, fmt.Errorf("listing: %s/%s after %d pages: %w", driveID, folderID, a.maxPages, ErrListingTruncated)
}
