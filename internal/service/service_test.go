package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
	"github.com/any-hub/asset-cache/internal/upstream/memstore"
)

// gatedStore 阻塞 Get 直到 release 关闭，用于验证并发回源合并。
type gatedStore struct {
	*memstore.Store
	release chan struct{}
	calls   atomic.Int32
}

func (g *gatedStore) Get(ctx context.Context, id string) (*asset.Asset, error) {
	g.calls.Add(1)
	<-g.release
	return g.Store.Get(ctx, id)
}

type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string) (*asset.Asset, error) { return nil, f.err }
func (f failingStore) Put(context.Context, *asset.Asset) error { return f.err }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newCache(t *testing.T) *cache.AssetCache {
	t.Helper()
	c, err := cache.New(cache.Options{Directory: t.TempDir(), Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seeded(t *testing.T, assets ...*asset.Asset) *memstore.Store {
	t.Helper()
	store := memstore.New()
	for _, a := range assets {
		require.NoError(t, store.Put(context.Background(), a))
	}
	return store
}

func TestGetFetchesThroughThenHitsCache(t *testing.T) {
	c := newCache(t)
	store := seeded(t, &asset.Asset{ID: "a1", Type: asset.TypeNotecard, Data: []byte("body")})
	svc := New(c, store, Options{Logger: quietLogger()})
	ctx := context.Background()

	a, hit, err := svc.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "body", string(a.Data))
	c.Flush()

	a, hit, err = svc.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "body", string(a.Data))
	assert.Equal(t, 1, store.Gets())
}

func TestGetRemembersMissing(t *testing.T) {
	c := newCache(t)
	store := memstore.New()
	now := time.Now()
	svc := New(c, store, Options{Logger: quietLogger(), MissingTTL: time.Minute, Now: func() time.Time { return now }})
	ctx := context.Background()

	_, _, err := svc.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, svc.IsKnownMissing("ghost"))

	_, _, err = svc.Get(ctx, "ghost")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Gets(), "known missing ids are not refetched")

	now = now.Add(2 * time.Minute)
	assert.False(t, svc.IsKnownMissing("ghost"), "missing marks expire")
	assert.Equal(t, 0, svc.MissingCount())
}

func TestStoreClearsMissingAndCaches(t *testing.T) {
	c := newCache(t)
	store := memstore.New()
	svc := New(c, store, Options{Logger: quietLogger()})
	ctx := context.Background()

	_, err := svc.FetchAsset(ctx, "later")
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, svc.IsKnownMissing("later"))

	require.NoError(t, svc.Store(ctx, &asset.Asset{ID: "later", Data: []byte("now here")}))
	assert.False(t, svc.IsKnownMissing("later"))
	c.Flush()

	ok, err := svc.Exists(ctx, "later")
	require.NoError(t, err)
	assert.True(t, ok)

	require.Error(t, svc.Store(ctx, nil))
}

func TestGetDataUsesDataNamespace(t *testing.T) {
	c := newCache(t)
	store := seeded(t, &asset.Asset{ID: "tex", Type: asset.TypeTexture, Data: []byte{9, 8, 7}})
	svc := New(c, store, Options{Logger: quietLogger()})
	ctx := context.Background()

	data, hit, err := svc.GetData(ctx, "tex")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte{9, 8, 7}, data)
	c.Flush()

	c.Expire("tex")
	c.CacheData("tex", []byte{1})
	c.Flush()
	data, hit, err = svc.GetData(ctx, "tex")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte{1}, data)
}

func TestExistsForMissingAsset(t *testing.T) {
	svc := New(newCache(t), memstore.New(), Options{Logger: quietLogger()})
	ok, err := svc.Exists(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchAssetCoalescesConcurrentCalls(t *testing.T) {
	c := newCache(t)
	gated := &gatedStore{
		Store:   seeded(t, &asset.Asset{ID: "shared", Data: []byte("x")}),
		release: make(chan struct{}),
	}
	svc := New(c, gated, Options{Logger: quietLogger()})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := svc.FetchAsset(context.Background(), "shared")
			assert.NoError(t, err)
			assert.Equal(t, "x", string(a.Data))
		}()
	}
	require.Eventually(t, func() bool { return gated.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gated.release)
	wg.Wait()

	assert.Equal(t, int32(1), gated.calls.Load())
}

func TestUpstreamErrorsPropagate(t *testing.T) {
	boom := errors.New("boom")
	svc := New(newCache(t), failingStore{err: boom}, Options{Logger: quietLogger()})

	_, _, err := svc.Get(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	assert.False(t, svc.IsKnownMissing("x"), "transient failures are not remembered")

	_, err = svc.Exists(context.Background(), "x")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, svc.Store(context.Background(), &asset.Asset{ID: "x"}), boom)
}
