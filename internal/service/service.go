// Package service 在缓存之上提供回源读取：缓存未命中时访问上游存储，
// 合并同一 ID 的并发回源，并记住上游确认缺失的 ID。
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
	"github.com/any-hub/asset-cache/internal/upstream"
)

const defaultMissingTTL = 5 * time.Minute

// ErrNotFound 表示资产在缓存与上游中均不存在。
var ErrNotFound = upstream.ErrNotFound

// Options 控制 AssetService 行为。
type Options struct {
	// MissingTTL 为“上游缺失”记录的有效期，过期后允许再次回源。
	MissingTTL time.Duration
	Logger     *logrus.Logger
	Now        func() time.Time
}

// AssetService 组合 AssetCache 与上游 Store。
type AssetService struct {
	cache    *cache.AssetCache
	upstream upstream.Store
	opts     Options
	logger   *logrus.Logger
	group    singleflight.Group

	mu      sync.Mutex
	missing map[string]time.Time
}

// New 构造 AssetService。
func New(c *cache.AssetCache, store upstream.Store, opts Options) *AssetService {
	if opts.MissingTTL <= 0 {
		opts.MissingTTL = defaultMissingTTL
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AssetService{
		cache:    c,
		upstream: store,
		opts:     opts,
		logger:   opts.Logger,
		missing:  make(map[string]time.Time),
	}
}

// Cache 返回底层缓存。
func (s *AssetService) Cache() *cache.AssetCache {
	return s.cache
}

// Upstream 返回底层上游存储。
func (s *AssetService) Upstream() upstream.Store {
	return s.upstream
}

// Get 优先读缓存，未命中时回源；hit 表示结果来自缓存。
func (s *AssetService) Get(ctx context.Context, id string) (a *asset.Asset, hit bool, err error) {
	if cached, ok := s.cache.Get(id); ok && cached != nil {
		return cached, true, nil
	}
	if s.IsKnownMissing(id) {
		return nil, false, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	a, err = s.FetchAsset(ctx, id)
	return a, false, err
}

// GetData 只返回正文，优先使用 data-only 缓存。
func (s *AssetService) GetData(ctx context.Context, id string) ([]byte, bool, error) {
	if data, ok := s.cache.GetData(id); ok {
		return data, true, nil
	}
	if s.IsKnownMissing(id) {
		return nil, false, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	a, err := s.FetchAsset(ctx, id)
	if err != nil {
		return nil, false, err
	}
	s.cache.CacheData(id, a.Data)
	return a.Data, false, nil
}

// Exists 判断资产是否存在；缓存命中时不访问上游。
func (s *AssetService) Exists(ctx context.Context, id string) (bool, error) {
	if s.cache.Contains(id) {
		return true, nil
	}
	if s.IsKnownMissing(id) {
		return false, nil
	}
	if _, err := s.FetchAsset(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Store 先写上游，成功后写缓存并清除缺失记录。
func (s *AssetService) Store(ctx context.Context, a *asset.Asset) error {
	if a == nil || a.ID == "" {
		return errors.New("asset id is required")
	}
	if err := s.upstream.Put(ctx, a); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"action": "asset_store",
			"key":    a.ID,
		}).Warn("upstream_put_failed")
		return err
	}
	s.forgetMissing(a.ID)
	s.cache.Cache(a.ID, a)
	return nil
}

// FetchAsset 直接回源并写入缓存，同一 ID 的并发调用只访问上游一次。
func (s *AssetService) FetchAsset(ctx context.Context, id string) (*asset.Asset, error) {
	v, err, _ := s.group.Do(id, func() (any, error) {
		a, err := s.upstream.Get(ctx, id)
		if err != nil {
			if errors.Is(err, upstream.ErrNotFound) {
				s.rememberMissing(id)
				s.cache.Cache(id, nil)
				return nil, err
			}
			s.logger.WithError(err).WithFields(logrus.Fields{
				"action": "asset_fetch",
				"key":    id,
			}).Warn("upstream_get_failed")
			return nil, err
		}
		if a == nil {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		s.forgetMissing(id)
		s.cache.Cache(id, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*asset.Asset), nil
}

// IsKnownMissing 报告上游近期是否确认该 ID 不存在。
func (s *AssetService) IsKnownMissing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.missing[id]
	if !ok {
		return false
	}
	if s.opts.Now().Sub(at) > s.opts.MissingTTL {
		delete(s.missing, id)
		return false
	}
	return true
}

// MissingCount 返回当前缺失记录数量。
func (s *AssetService) MissingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.missing)
}

func (s *AssetService) rememberMissing(id string) {
	s.mu.Lock()
	s.missing[id] = s.opts.Now()
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{"action": "asset_fetch", "key": id}).Debug("upstream_asset_missing")
}

func (s *AssetService) forgetMissing(id string) {
	s.mu.Lock()
	delete(s.missing, id)
	s.mu.Unlock()
}
