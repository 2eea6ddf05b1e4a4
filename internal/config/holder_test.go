package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_SnapshotAndPath(t *testing.T) {
	cfg := DefaultConfig()
	h := NewHolder(cfg, "/etc/alipan-go/config.toml")

	assert.Same(t, cfg, h.Config())
	assert.Equal(t, "/etc/alipan-go/config.toml", h.Path())
}

func TestHolder_UpdateKeepsOldSnapshotIntact(t *testing.T) {
	old := DefaultConfig()
	h := NewHolder(old, "")

	next := DefaultConfig()
	next.Listing.PageSize = 50
	h.Update(next)

	assert.Same(t, next, h.Config())
	assert.Equal(t, DefaultConfig().Listing.PageSize, old.Listing.PageSize)
	assert.Empty(t, h.Path())
}

func TestHolder_ReadersDuringReload(t *testing.T) {
	h := NewHolder(DefaultConfig(), "/tmp/config.toml")

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range 200 {
				if i%4 == 0 {
					cfg := DefaultConfig()
					cfg.Listing.PageSize = j + 1
					h.Update(cfg)

					continue
				}

				assert.NotNil(t, h.Config())
			}
		}()
	}

	wg.Wait()
	assert.Positive(t, h.Config().Listing.PageSize)
}
