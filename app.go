package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tonimelisma/alipan-go/internal/alipan"
	"github.com/tonimelisma/alipan-go/internal/config"
	"github.com/tonimelisma/alipan-go/internal/dircache"
	"github.com/tonimelisma/alipan-go/internal/kvstore"
	"github.com/tonimelisma/alipan-go/internal/notify"
	"github.com/tonimelisma/alipan-go/internal/provider"
	"github.com/tonimelisma/alipan-go/internal/session"
	"github.com/tonimelisma/alipan-go/internal/tasks"
	"github.com/tonimelisma/alipan-go/internal/upload"
)

// app bundles everything a command needs to talk to the drives. Built by
// openApp, released by Close.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *kvstore.Store
	session  *session.Manager
	client   *alipan.Client
	pool     *tasks.Pool
	events   *notify.Broadcaster
	provider *provider.Provider
}

// newTransport returns a transport whose dial is bounded by the configured
// connect timeout. Shared by the metadata and transfer clients.
func newTransport(cfg *config.Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{
		Timeout:   cfg.ConnectTimeout(),
		KeepAlive: 30 * time.Second,
	}).DialContext
	t.TLSHandshakeTimeout = cfg.ConnectTimeout()

	return t
}

// openApp opens the state database and wires the session, API client and
// document tree.
func openApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := kvstore.Open(ctx, cfg.StatePath(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	transport := newTransport(cfg)
	metaHTTP := &http.Client{Transport: transport, Timeout: cfg.MetadataTimeout()}
	// Transfers run as long as they need to.
	transferHTTP := &http.Client{Transport: transport}

	exchanger := session.NewOAuthExchanger(cfg.API.ClientID, cfg.API.ClientSecret, cfg.API.TokenURL, metaHTTP)
	sess := session.NewManager(store, exchanger, logger)

	userAgent := cfg.API.UserAgent
	if userAgent == "" {
		userAgent = alipan.DefaultUserAgent
	}

	client := alipan.NewClient(cfg.API.BaseURL, metaHTTP, sess, logger, userAgent)
	client.SetRateLimit(cfg.API.RequestsPerSecond)

	pool := tasks.NewPool(cfg.Transfers.Workers, logger)
	events := notify.NewBroadcaster()

	p := provider.New(provider.Options{
		Remote:             client,
		Store:              store,
		Auth:               sess,
		Submitter:          pool,
		Notifier:           events,
		Cache:              dircache.New(logger),
		Sessions:           upload.NewSessions(cfg.UploadSessionTTL()),
		TransferHTTP:       transferHTTP,
		UserAgent:          userAgent,
		ThumbnailDir:       cfg.ThumbnailDir(),
		PageSize:           cfg.Listing.PageSize,
		MaxPages:           cfg.Listing.MaxPages,
		CheckNameMode:      cfg.API.CheckNameMode,
		UploadBufferChunks: cfg.Transfers.UploadBufferChunks,
		MaxUploadSize:      cfg.MaxUploadBytes(),
		Logger:             logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		session:  sess,
		client:   client,
		pool:     pool,
		events:   events,
		provider: p,
	}, nil
}

// appCloseTimeout bounds how long Close waits for background tasks.
const appCloseTimeout = 10 * time.Second

// Close cancels outstanding background work and closes the database.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), appCloseTimeout)
	defer cancel()

	if err := a.pool.Close(ctx); err != nil {
		a.logger.Warn("background tasks did not stop", slog.String("error", err.Error()))
	}

	return a.store.Close()
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx, cfgHolder.Config(), buildLogger())
	if err != nil {
		return err
	}

	runErr := fn(a)

	if err := a.Close(); err != nil && runErr == nil {
		return fmt.Errorf("closing state database: %w", err)
	}

	return runErr
}
