package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	values  map[string]string
	failSet error
}

func newMemStore(kv ...string) *memStore {
	s := &memStore{values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		s.values[kv[i]] = kv[i+1]
	}

	return s
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]

	return v, ok, nil
}

func (s *memStore) SetMany(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failSet != nil {
		return s.failSet
	}

	for k, v := range values {
		s.values[k] = v
	}

	return nil
}

func (s *memStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.values, k)
	}

	return nil
}

func (s *memStore) get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.values[key]
}

// countingExchanger issues "access-N" tokens and counts calls.
type countingExchanger struct {
	calls   atomic.Int32
	ttl     time.Duration
	rotate  string
	err     error
	lastArg atomic.Value
}

func (e *countingExchanger) Exchange(_ context.Context, refresh string) (*Grant, error) {
	n := e.calls.Add(1)
	e.lastArg.Store(refresh)

	if e.err != nil {
		return nil, e.err
	}

	return &Grant{
		AccessToken:  "access-" + string(rune('0'+n)),
		RefreshToken: e.rotate,
		TTL:          e.ttl,
	}, nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

func newTestManager(store Store, ex Exchanger) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(store, ex, nil)
	m.now = clock.now

	return m, clock
}

func TestAccessToken_NotAuthenticated(t *testing.T) {
	ex := &countingExchanger{ttl: time.Hour}
	m, _ := newTestManager(newMemStore(), ex)

	_, err := m.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Equal(t, int32(0), ex.calls.Load())
}

func TestAccessToken_CachedUntilExpiry(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	ex := &countingExchanger{ttl: 2 * time.Hour}
	m, clock := newTestManager(store, ex)
	ctx := context.Background()

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok)
	assert.Equal(t, "refresh-1", ex.lastArg.Load())

	clock.advance(2*time.Hour - time.Second)

	again, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), ex.calls.Load())

	clock.advance(time.Second)

	refreshed, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", refreshed)
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestAccessToken_PersistsGrant(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	ex := &countingExchanger{ttl: 7200 * time.Second, rotate: "refresh-2"}
	m, clock := newTestManager(store, ex)

	_, err := m.AccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "access-1", store.get(KeyAccessToken))
	assert.Equal(t, "refresh-2", store.get(KeyRefreshToken))

	expiry, err := time.Parse(time.RFC3339Nano, store.get(KeyAccessExpiry))
	require.NoError(t, err)
	assert.True(t, clock.now().Add(7200*time.Second).Equal(expiry))
}

func TestAccessToken_SurvivesRestart(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	ex := &countingExchanger{ttl: time.Hour}

	first, clock := newTestManager(store, ex)
	tok, err := first.AccessToken(context.Background())
	require.NoError(t, err)

	second := NewManager(store, ex, nil)
	second.now = clock.now

	again, err := second.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok, again)
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestAccessToken_ExchangeFailureLeavesSessionUnchanged(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1", KeyAccessToken, "stale")
	ex := &countingExchanger{err: errors.New("invalid_grant")}
	m, _ := newTestManager(store, ex)

	_, err := m.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrCredentialExchangeFailed)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Equal(t, "stale", store.get(KeyAccessToken))
	assert.Equal(t, "refresh-1", store.get(KeyRefreshToken))

	// Retry is allowed on the next call.
	ex.err = nil

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok)
}

func TestAccessToken_PersistFailure(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	store.failSet = errors.New("disk full")
	m, _ := newTestManager(store, &countingExchanger{ttl: time.Hour})

	_, err := m.AccessToken(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialExchangeFailed)
}

func TestAccessToken_ConcurrentCallersShareOneExchange(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	ex := &countingExchanger{ttl: time.Hour}
	m, _ := newTestManager(store, ex)

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			tok, err := m.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "access-1", tok)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), ex.calls.Load())
}

func TestExpire(t *testing.T) {
	store := newMemStore(KeyRefreshToken, "refresh-1")
	ex := &countingExchanger{ttl: time.Hour}
	m, _ := newTestManager(store, ex)
	ctx := context.Background()

	tok, err := m.AccessToken(ctx)
	require.NoError(t, err)

	m.Expire("someone-else")

	same, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, tok, same)

	m.Expire(tok)

	fresh, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, tok, fresh)
	assert.Equal(t, int32(2), ex.calls.Load())
}

func TestLoginLogoutStatus(t *testing.T) {
	store := newMemStore("backup_drive_id", "100")
	ex := &countingExchanger{ttl: time.Hour}
	m, clock := newTestManager(store, ex)
	ctx := context.Background()

	st, err := m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.LoggedIn)

	require.Error(t, m.Login(ctx, ""))
	require.NoError(t, m.Login(ctx, "refresh-1"))

	_, err = m.AccessToken(ctx)
	require.NoError(t, err)

	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.LoggedIn)
	assert.Equal(t, clock.now().Add(time.Hour), st.Expiry)

	require.NoError(t, m.Logout(ctx, "backup_drive_id"))

	st, err = m.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.LoggedIn)
	assert.True(t, st.Expiry.IsZero())
	assert.Empty(t, store.get("backup_drive_id"))

	_, err = m.AccessToken(ctx)
	require.ErrorIs(t, err, ErrNotAuthenticated)
}
