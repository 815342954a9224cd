package cache

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/any-hub/asset-cache/internal/asset"
)

const memoryShardCount = 32

// memoryEntry 为内存层条目；asset 为 nil 表示负缓存占位（记录过“查无新值”）。
type memoryEntry struct {
	asset    *asset.Asset
	expireAt time.Time
}

func (e memoryEntry) negative() bool {
	return e.asset == nil
}

type memoryShard struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
}

// MemoryTier 是按 xxhash 分片的带过期内存缓存，过期在读取时惰性检查。
type MemoryTier struct {
	shards      [memoryShardCount]*memoryShard
	maxPerShard int
	now         func() time.Time
}

// NewMemoryTier 构造内存层；maxEntries <= 0 表示不限制条目数。
func NewMemoryTier(maxEntries int, now func() time.Time) *MemoryTier {
	if now == nil {
		now = time.Now
	}
	t := &MemoryTier{now: now}
	if maxEntries > 0 {
		t.maxPerShard = (maxEntries + memoryShardCount - 1) / memoryShardCount
	}
	for i := range t.shards {
		t.shards[i] = &memoryShard{items: make(map[string]memoryEntry)}
	}
	return t
}

func (t *MemoryTier) shard(key string) *memoryShard {
	return t.shards[xxhash.Sum64String(key)%memoryShardCount]
}

// Get 返回未过期的条目；过期条目会被顺带删除。
func (t *MemoryTier) Get(key string) (memoryEntry, bool) {
	s := t.shard(key)
	now := t.now()

	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return memoryEntry{}, false
	}
	if !now.Before(entry.expireAt) {
		s.mu.Lock()
		if cur, still := s.items[key]; still && !now.Before(cur.expireAt) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return memoryEntry{}, false
	}
	return entry, true
}

// Put 写入或刷新条目，ttl <= 0 时忽略写入。a 为 nil 时写入负缓存占位。
func (t *MemoryTier) Put(key string, a *asset.Asset, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s := t.shard(key)
	now := t.now()
	entry := memoryEntry{asset: a, expireAt: now.Add(ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; !exists && t.maxPerShard > 0 && len(s.items) >= t.maxPerShard {
		s.evictLocked(now, t.maxPerShard)
	}
	s.items[key] = entry
}

// evictLocked 先清理过期条目，仍然满时淘汰最早到期的条目。
func (s *memoryShard) evictLocked(now time.Time, limit int) {
	var (
		victim   string
		earliest time.Time
		found    bool
	)
	for k, e := range s.items {
		if !now.Before(e.expireAt) {
			delete(s.items, k)
			continue
		}
		if !found || e.expireAt.Before(earliest) {
			victim, earliest, found = k, e.expireAt, true
		}
	}
	if found && len(s.items) >= limit {
		delete(s.items, victim)
	}
}

// Remove 删除条目，不存在时无操作。
func (t *MemoryTier) Remove(key string) {
	s := t.shard(key)
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Contains 仅对未过期的正常条目返回 true，负缓存占位不计入。
func (t *MemoryTier) Contains(key string) bool {
	entry, ok := t.Get(key)
	return ok && !entry.negative()
}

// Clear 清空所有分片。
func (t *MemoryTier) Clear() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.items = make(map[string]memoryEntry)
		s.mu.Unlock()
	}
}

// Count 返回当前条目数（包含尚未被惰性清理的过期条目）。
func (t *MemoryTier) Count() int {
	total := 0
	for _, s := range t.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}
