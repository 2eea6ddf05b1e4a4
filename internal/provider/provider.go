// Package provider is the document tree facade: the operation surface a
// host document framework calls to browse, read, write and search the two
// drives of an account.
//
// Listing entry points never wait on the network. A directory that is not
// cached is reported as loading, fetched on a background task, and its
// topic is notified once the snapshot is stored. Operations with a direct
// result (stat on a cold directory, open, create, delete, search) call the
// remote API and return its errors.
package provider

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/dircache"
	"github.com/tonimelisma/alipan-go/internal/listing"
	"github.com/tonimelisma/alipan-go/internal/notify"
	"github.com/tonimelisma/alipan-go/internal/session"
	"github.com/tonimelisma/alipan-go/internal/tasks"
	"github.com/tonimelisma/alipan-go/internal/thumbcache"
	"github.com/tonimelisma/alipan-go/internal/upload"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrNotFound means the document id names nothing, or the remote
	// lookup behind an open failed.
	ErrNotFound = errors.New("provider: document not found")

	// ErrRemoteCreateFailed wraps a failed create call.
	ErrRemoteCreateFailed = errors.New("provider: remote create failed")

	// ErrRemoteDeleteFailed wraps a failed trash call.
	ErrRemoteDeleteFailed = errors.New("provider: remote delete failed")

	// ErrInvalidName is returned by Create for an unusable display name.
	ErrInvalidName = errors.New("provider: invalid name")
)

// Remote is the slice of the API client the facade uses.
type Remote interface {
	listing.PageLister
	upload.Remote
	GetDriveInfo(ctx context.Context) (*alipan.DriveInfo, error)
	GetFile(ctx context.Context, driveID, fileID string) (*alipan.Item, error)
	SearchFiles(ctx context.Context, driveID, query string, pageSize int) (*alipan.Page, error)
	GetDownloadURL(ctx context.Context, driveID, fileID string) (*alipan.DownloadURL, error)
	CreateFile(ctx context.Context, driveID, parentFileID, name, checkNameMode string) (*alipan.UploadTarget, error)
	Trash(ctx context.Context, driveID, fileID string) error
}

// Store persists the resolved drive identifiers.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
}

// Authenticator reports whether a refresh credential is stored. Reading it
// touches only local state.
type Authenticator interface {
	Status(ctx context.Context) (session.Status, error)
}

// Options configures a Provider. Remote, Store, Submitter and Notifier are
// required.
type Options struct {
	Remote    Remote
	Store     Store
	Auth      Authenticator
	Submitter tasks.Submitter
	Notifier  notify.Notifier

	// Cache and Sessions default to fresh in-memory instances.
	Cache    *dircache.Cache
	Sessions *upload.Sessions

	// TransferHTTP serves content reads and thumbnail downloads.
	TransferHTTP *http.Client
	UserAgent    string

	// ThumbnailDir enables the thumbnail cache when set.
	ThumbnailDir string

	PageSize           int
	MaxPages           int
	CheckNameMode      string
	UploadBufferChunks int
	MaxUploadSize      int64

	Logger *slog.Logger
}

// Provider implements the document tree operations. Safe for concurrent use.
type Provider struct {
	remote     Remote
	store      Store
	auth       Authenticator
	submitter  tasks.Submitter
	notifier   notify.Notifier
	cache      *dircache.Cache
	sessions   *upload.Sessions
	aggregator *listing.Aggregator
	thumbs     *thumbcache.Cache

	transferHTTP  *http.Client
	userAgent     string
	pageSize      int
	checkNameMode string
	uploadOpts    upload.Options
	logger        *slog.Logger

	mu        sync.Mutex
	drives    Drives
	resolving bool
}

// New creates a Provider.
func New(opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Cache == nil {
		opts.Cache = dircache.New(opts.Logger)
	}

	if opts.Sessions == nil {
		opts.Sessions = upload.NewSessions(upload.DefaultSessionTTL)
	}

	if opts.TransferHTTP == nil {
		opts.TransferHTTP = http.DefaultClient
	}

	if opts.CheckNameMode == "" {
		opts.CheckNameMode = alipan.CheckNameOverwrite
	}

	p := &Provider{
		remote:        opts.Remote,
		store:         opts.Store,
		auth:          opts.Auth,
		submitter:     opts.Submitter,
		notifier:      opts.Notifier,
		cache:         opts.Cache,
		sessions:      opts.Sessions,
		aggregator:    listing.NewAggregator(opts.Remote, opts.PageSize, opts.MaxPages, opts.Logger),
		transferHTTP:  opts.TransferHTTP,
		userAgent:     opts.UserAgent,
		pageSize:      opts.PageSize,
		checkNameMode: opts.CheckNameMode,
		logger:        opts.Logger,
		uploadOpts: upload.Options{
			BufferChunks: opts.UploadBufferChunks,
			MaxSize:      opts.MaxUploadSize,
			Logger:       opts.Logger,
		},
	}

	if opts.ThumbnailDir != "" {
		p.thumbs = thumbcache.New(opts.ThumbnailDir, opts.Submitter, thumbcache.Options{
			HTTPClient: opts.TransferHTTP,
			UserAgent:  opts.UserAgent,
			OnReady:    opts.Notifier.Notify,
			Logger:     opts.Logger,
		})
	}

	return p
}

// invalidate drops a directory snapshot and tells the host to re-query it.
func (p *Provider) invalidate(dirID string) {
	p.cache.Invalidate(dirID)
	p.notifier.Notify(dirID)
}

// Reset forgets every cached listing and the resolved drive ids. Used
// after logout.
func (p *Provider) Reset() {
	p.cache.Flush()

	p.mu.Lock()
	p.drives = Drives{}
	p.mu.Unlock()

	p.notifier.Notify(notify.RootsTopic)
}
