package cache

import "sync/atomic"

// counters 为 AssetCache 自有的命中统计，不使用进程级全局变量。
type counters struct {
	requests     atomic.Int64
	memoryHits   atomic.Int64
	diskHits     atomic.Int64
	misses       atomic.Int64
	collisions   atomic.Int64
	corrupt      atomic.Int64
	writes       atomic.Int64
	writeErrors  atomic.Int64
	writeSkipped atomic.Int64
	writeDropped atomic.Int64
}

func (c *counters) reset() {
	c.requests.Store(0)
	c.memoryHits.Store(0)
	c.diskHits.Store(0)
	c.misses.Store(0)
	c.collisions.Store(0)
	c.corrupt.Store(0)
	c.writes.Store(0)
	c.writeErrors.Store(0)
	c.writeSkipped.Store(0)
	c.writeDropped.Store(0)
}

// Stats 是命中统计与各层占用的快照。
type Stats struct {
	Requests      int64 `json:"requests"`
	MemoryHits    int64 `json:"memory_hits"`
	DiskHits      int64 `json:"disk_hits"`
	Misses        int64 `json:"misses"`
	Collisions    int64 `json:"inflight_collisions"`
	CorruptReads  int64 `json:"corrupt_reads"`
	Writes        int64 `json:"writes"`
	WriteErrors   int64 `json:"write_errors"`
	WritesSkipped int64 `json:"writes_skipped"`
	WritesDropped int64 `json:"writes_dropped"`
	MemoryEntries int   `json:"memory_entries"`
	PendingWrites int   `json:"pending_writes"`
	HotKeys       int   `json:"hot_keys"`
}

// MemoryHitRate 返回内存命中百分比。
func (s Stats) MemoryHitRate() float64 {
	return percent(s.MemoryHits, s.Requests)
}

// DiskHitRate 返回磁盘命中百分比。
func (s Stats) DiskHitRate() float64 {
	return percent(s.DiskHits, s.Requests)
}

func percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
