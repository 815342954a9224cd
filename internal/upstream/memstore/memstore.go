// Package memstore 提供进程内上游实现，用于开发环境与测试。
package memstore

import (
	"context"
	"errors"
	"sync"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/upstream"
)

func init() {
	upstream.MustRegister(upstream.Backend{
		Key:         "memory",
		Description: "in-process asset map",
		Factory: func(upstream.Options) (upstream.Store, error) {
			return New(), nil
		},
	})
}

// Store 以 map 保存资产，读写均复制 Data，避免与调用方共享切片。
type Store struct {
	mu     sync.RWMutex
	assets map[string]*asset.Asset
	gets   int
}

// New 创建空的内存上游。
func New() *Store {
	return &Store{assets: make(map[string]*asset.Asset)}
}

// Get 返回资产副本，不存在时返回 upstream.ErrNotFound。
func (s *Store) Get(_ context.Context, id string) (*asset.Asset, error) {
	s.mu.Lock()
	s.gets++
	a, ok := s.assets[id]
	s.mu.Unlock()
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return a.Clone(), nil
}

// Put 保存资产副本。
func (s *Store) Put(_ context.Context, a *asset.Asset) error {
	if a == nil || a.ID == "" {
		return errors.New("asset id is required")
	}
	s.mu.Lock()
	s.assets[a.ID] = a.Clone()
	s.mu.Unlock()
	return nil
}

// Delete 删除资产，用于模拟上游丢失。
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.assets, id)
	s.mu.Unlock()
}

// Gets 返回 Get 被调用的次数。
func (s *Store) Gets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gets
}
