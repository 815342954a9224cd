package cache

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/asset-cache/internal/asset"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestCache(t *testing.T, mutate func(*Options)) *AssetCache {
	t.Helper()
	opts := Options{
		Directory: t.TempDir(),
		Logger:    quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testAsset(id string, payload string) *asset.Asset {
	return &asset.Asset{
		ID:          id,
		Type:        asset.TypeNotecard,
		Name:        "note " + id,
		Description: "test asset",
		Data:        []byte(payload),
		CreatorID:   "11111111-2222-3333-4444-555555555555",
	}
}
