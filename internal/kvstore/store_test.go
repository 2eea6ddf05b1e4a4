package kvstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state", "state.db")

	s, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, path
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	v, ok, err := s.Get(context.Background(), "refresh_token")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestStore_SetGetOverwrite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestStore_SetManyAndDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	require.NoError(t, s.Delete(ctx, "a", "c", "missing"))

	keys, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "backup_drive_id", "100"))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "backup_drive_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "100", v)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, s.Set(ctx, "shared", string(rune('a'+i))))
		}()
	}

	wg.Wait()

	_, ok, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.True(t, ok)
}
