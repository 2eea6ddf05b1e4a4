// Package session owns the long-lived refresh credential and the
// short-lived access credential exchanged from it. The access credential is
// cached with its expiry, persisted on every refresh, and refreshed lazily
// when a caller finds it expired.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// Keys under which the session is persisted.
const (
	KeyRefreshToken = "refresh_token"
	KeyAccessToken  = "access_token"
	KeyAccessExpiry = "access_token_expiry"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrNotAuthenticated means no refresh credential is stored; the user
	// must log in before any remote operation can succeed.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrCredentialExchangeFailed means the token endpoint rejected or could
	// not be reached for the refresh. The session is left unchanged.
	ErrCredentialExchangeFailed = errors.New("session: credential exchange failed")
)

// Store is the persistent key-value store the session lives in.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// Grant is the result of one credential exchange.
type Grant struct {
	AccessToken  string
	RefreshToken string // rotated refresh credential; empty if unchanged
	TTL          time.Duration
}

// Exchanger trades a refresh credential for an access credential.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*Grant, error)
}

// Status is a snapshot of the session for display.
type Status struct {
	LoggedIn bool
	Expiry   time.Time // zero when no access credential is cached
}

// Manager hands out access credentials. A single mutex serializes the
// check-refresh-store sequence so concurrent callers share one exchange.
type Manager struct {
	store     Store
	exchanger Exchanger
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	loaded bool
	access string
	expiry time.Time
}

// NewManager creates a Manager. Nothing is read from the store until the
// first call.
func NewManager(store Store, exchanger Exchanger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:     store,
		exchanger: exchanger,
		logger:    logger,
		now:       time.Now,
	}
}

// AccessToken returns a valid access credential, exchanging the refresh
// credential when the cached one is absent or expired.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return "", err
	}

	if m.access != "" && m.now().Before(m.expiry) {
		return m.access, nil
	}

	refresh, ok, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return "", fmt.Errorf("session: reading refresh token: %w", err)
	}

	if !ok || refresh == "" {
		return "", ErrNotAuthenticated
	}

	return m.refreshLocked(ctx, refresh)
}

// loadLocked reads the cached access credential from the store once.
func (m *Manager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}

	access, _, err := m.store.Get(ctx, KeyAccessToken)
	if err != nil {
		return fmt.Errorf("session: reading access token: %w", err)
	}

	rawExpiry, _, err := m.store.Get(ctx, KeyAccessExpiry)
	if err != nil {
		return fmt.Errorf("session: reading access token expiry: %w", err)
	}

	m.access = access
	m.expiry = time.Time{}

	if rawExpiry != "" {
		if t, parseErr := time.Parse(time.RFC3339Nano, rawExpiry); parseErr == nil {
			m.expiry = t
		} else {
			m.logger.Warn("ignoring malformed access token expiry",
				slog.String("raw", rawExpiry),
			)
		}
	}

	m.loaded = true

	return nil
}

func (m *Manager) refreshLocked(ctx context.Context, refresh string) (string, error) {
	m.logger.Debug("exchanging refresh token")

	grant, err := m.exchanger.Exchange(ctx, refresh)
	if err != nil {
		metrics.RecordTokenRefresh(false)

		return "", fmt.Errorf("%w: %w", ErrCredentialExchangeFailed, err)
	}

	if grant.AccessToken == "" {
		metrics.RecordTokenRefresh(false)

		return "", fmt.Errorf("%w: empty access token", ErrCredentialExchangeFailed)
	}

	expiry := m.now().Add(grant.TTL)

	values := map[string]string{
		KeyAccessToken:  grant.AccessToken,
		KeyAccessExpiry: expiry.Format(time.RFC3339Nano),
	}

	if grant.RefreshToken != "" && grant.RefreshToken != refresh {
		values[KeyRefreshToken] = grant.RefreshToken
	}

	if err := m.store.SetMany(ctx, values); err != nil {
		return "", fmt.Errorf("session: persisting access token: %w", err)
	}

	m.access = grant.AccessToken
	m.expiry = expiry

	metrics.RecordTokenRefresh(true)
	m.logger.Info("access token refreshed",
		slog.Time("expiry", expiry),
		slog.Bool("refresh_rotated", len(values) == 3),
	)

	return m.access, nil
}

// Expire drops the cached access credential if it is still tok, so the next
// AccessToken call exchanges a new one. Used when the server rejects a
// token before its declared expiry.
func (m *Manager) Expire(tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access == tok {
		m.expiry = time.Time{}
	}
}

// Login stores a new refresh credential and discards any cached access
// credential issued for the previous one.
func (m *Manager) Login(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("session: empty refresh token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetMany(ctx, map[string]string{
		KeyRefreshToken: refreshToken,
		KeyAccessToken:  "",
		KeyAccessExpiry: "",
	}); err != nil {
		return fmt.Errorf("session: storing refresh token: %w", err)
	}

	m.loaded = true
	m.access = ""
	m.expiry = time.Time{}

	m.logger.Info("refresh token stored")

	return nil
}

// Logout removes every persisted session key plus any extra keys the
// caller owns (resolved drive ids, for example).
func (m *Manager) Logout(ctx context.Context, extraKeys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := append([]string{KeyRefreshToken, KeyAccessToken, KeyAccessExpiry}, extraKeys...)
	if err := m.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("session: clearing session: %w", err)
	}

	m.loaded = true
	m.access = ""
	m.expiry = time.Time{}

	m.logger.Info("session cleared")

	return nil
}

// Status reports whether a refresh credential is stored and when the cached
// access credential expires.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return Status{}, err
	}

	refresh, ok, err := m.store.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Status{}, fmt.Errorf("session: reading refresh token: %w", err)
	}

	st := Status{LoggedIn: ok && refresh != ""}
	if m.access != "" {
		st.Expiry = m.expiry
	}

	return st, nil
}
