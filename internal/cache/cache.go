package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/any-hub/asset-cache/internal/asset"
)

const (
	defaultMemoryExpiration    = time.Minute
	defaultMaxConcurrentWrites = 16
	defaultWaitTimeout         = 5 * time.Second
)

// Options 汇总 AssetCache 的运行参数，零值字段使用默认值。
type Options struct {
	Directory              string
	MemoryEnabled          bool
	MemoryExpiration       time.Duration
	MemoryMaxEntries       int
	DisableFileCache       bool
	DirectoryTiers         int
	TierPrefixLength       int
	DirectoryWarnThreshold int
	HitRateLogInterval     int
	WaitOnInProgressWrites bool
	WaitTimeout            time.Duration
	MaxConcurrentWrites    int
	ReportCorruptAsFound   bool
	HotKeyThreshold        int
	HotKeyWindow           time.Duration

	Logger *logrus.Logger
	Now    func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MemoryExpiration <= 0 {
		o.MemoryExpiration = defaultMemoryExpiration
	}
	if o.DirectoryTiers <= 0 {
		o.DirectoryTiers = defaultDirectoryTiers
	}
	if o.TierPrefixLength <= 0 {
		o.TierPrefixLength = defaultTierPrefixLength
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = defaultWaitTimeout
	}
	if o.MaxConcurrentWrites <= 0 {
		o.MaxConcurrentWrites = defaultMaxConcurrentWrites
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// AssetCache 组合内存层与磁盘层，对外提供 Get/Cache/Expire 等操作。
// 缓存只是性能优化：所有失败都退化为未命中，不会向调用方返回错误。
type AssetCache struct {
	opts   Options
	logger *logrus.Logger

	memory *MemoryTier
	disk   *DiskTier
	writes *WriteCoordinator
	hot    *HotKeyPromoter

	stats    counters
	writeSem *semaphore.Weighted
	wg       sync.WaitGroup
	closed   atomic.Bool

	// writeCtx 在 Close 时取消，用于放弃仍在排队等待写盘名额的任务。
	writeCtx    context.Context
	cancelWrite context.CancelFunc
}

// New 根据 Options 构建缓存实例，并确保缓存目录存在。
func New(opts Options) (*AssetCache, error) {
	opts.applyDefaults()

	mapper := NewPathMapper(opts.Directory, opts.DirectoryTiers, opts.TierPrefixLength)
	disk, err := NewDiskTier(mapper, opts.DirectoryWarnThreshold, opts.Logger, opts.Now)
	if err != nil {
		return nil, err
	}

	writeCtx, cancelWrite := context.WithCancel(context.Background())
	return &AssetCache{
		opts:        opts,
		logger:      opts.Logger,
		memory:      NewMemoryTier(opts.MemoryMaxEntries, opts.Now),
		disk:        disk,
		writes:      NewWriteCoordinator(),
		hot:         NewHotKeyPromoter(opts.HotKeyThreshold, opts.HotKeyWindow, opts.Now),
		writeSem:    semaphore.NewWeighted(int64(opts.MaxConcurrentWrites)),
		writeCtx:    writeCtx,
		cancelWrite: cancelWrite,
	}, nil
}

// Disk 返回磁盘层，供清扫器与管理接口使用。
func (c *AssetCache) Disk() *DiskTier {
	return c.disk
}

// HotKeys 返回热点提升器。
func (c *AssetCache) HotKeys() *HotKeyPromoter {
	return c.hot
}

// FileCacheEnabled 表示磁盘层是否启用。
func (c *AssetCache) FileCacheEnabled() bool {
	return !c.opts.DisableFileCache
}

// memoryActive 判断该 key 是否使用内存层：全局开启，或被热点强制提升。
func (c *AssetCache) memoryActive(key string) bool {
	return c.opts.MemoryEnabled || c.hot.ShouldForceMemory(key)
}

// Get 依次查询内存层与磁盘层。返回的资产与缓存共享，调用方须视为只读。
func (c *AssetCache) Get(key string) (*asset.Asset, bool) {
	requests := c.stats.requests.Add(1)
	defer c.maybeLogHitRate(requests)
	c.hot.RecordAccess(key)

	if c.memoryActive(key) {
		if entry, ok := c.memory.Get(key); ok {
			if entry.negative() {
				c.stats.misses.Add(1)
				return nil, false
			}
			c.stats.memoryHits.Add(1)
			if c.FileCacheEnabled() {
				_ = c.disk.Touch(key)
			}
			return entry.asset, true
		}
	}

	if !c.FileCacheEnabled() {
		c.stats.misses.Add(1)
		return nil, false
	}

	if a, found := c.getFromDisk(key); found {
		return a, true
	}

	path := c.disk.Mapper().Path(key)
	if c.writes.InFlight(path) {
		c.stats.collisions.Add(1)
		if c.opts.WaitOnInProgressWrites && c.writes.Wait(path, c.opts.WaitTimeout) {
			if a, found := c.getFromDisk(key); found {
				return a, true
			}
		}
	}

	c.stats.misses.Add(1)
	return nil, false
}

// getFromDisk 读取磁盘条目并按内存规则回填。解码失败时是否报告 found
// 由 ReportCorruptAsFound 决定。
func (c *AssetCache) getFromDisk(key string) (*asset.Asset, bool) {
	a, err := c.disk.Read(key)
	switch {
	case err == nil:
		_ = c.disk.Touch(key)
		if c.memoryActive(key) {
			c.memory.Put(key, a, c.opts.MemoryExpiration)
		}
		c.stats.diskHits.Add(1)
		return a, true
	case errors.Is(err, ErrNotFound):
		return nil, false
	case errors.Is(err, ErrCorrupt):
		c.stats.corrupt.Add(1)
		if c.opts.ReportCorruptAsFound {
			c.stats.diskHits.Add(1)
			return nil, true
		}
		return nil, false
	default:
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_get",
			"key":    key,
		}).Warn("cache_disk_read_failed")
		return nil, false
	}
}

// Cache 写入资产。a 为 nil 表示“查过但没有新值可存”，只累计无值保存计数，
// 越过阈值后在内存层记录负缓存，避免重复探测磁盘。
func (c *AssetCache) Cache(key string, a *asset.Asset) {
	if a == nil {
		c.hot.RecordSaveWithoutValue(key)
		if c.hot.ShouldForceMemory(key) {
			c.memory.Put(key, nil, c.opts.MemoryExpiration)
		}
		return
	}

	if c.memoryActive(key) {
		c.memory.Put(key, a, c.opts.MemoryExpiration)
	}
	if c.FileCacheEnabled() {
		c.publish(c.disk, key, func() ([]byte, error) { return encodeAsset(a) })
	}
}

// CacheData 以 data-only 命名空间写盘，不进入内存层。
func (c *AssetCache) CacheData(key string, data []byte) {
	if data == nil || !c.FileCacheEnabled() {
		return
	}
	c.publish(c.disk.DataOnly(), key, func() ([]byte, error) { return encodeRaw(data), nil })
}

// publish 在调用方 goroutine 内同步完成写入登记，再把写盘交给后台任务。
// 同一路径已有在途写入时跳过；后台写入名额已满时任务排队等待，Cache 不阻塞。
func (c *AssetCache) publish(disk *DiskTier, key string, encode func() ([]byte, error)) {
	if c.closed.Load() {
		return
	}
	path := disk.Mapper().Path(key)
	if !c.writes.TryBegin(path) {
		c.stats.writeSkipped.Add(1)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.writes.End(path)
		if err := c.writeSem.Acquire(c.writeCtx, 1); err != nil {
			c.stats.writeDropped.Add(1)
			c.logger.WithFields(logrus.Fields{"action": "cache_write", "key": key}).Debug("cache_write_dropped")
			return
		}
		defer c.writeSem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				c.stats.writeErrors.Add(1)
				c.logger.WithFields(logrus.Fields{
					"action": "cache_write",
					"key":    key,
					"panic":  fmt.Sprint(r),
				}).Error("cache_write_panic")
			}
		}()

		if err := c.writeEntry(disk, key, path, encode); err != nil {
			c.stats.writeErrors.Add(1)
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_write",
				"key":    key,
				"path":   path,
			}).Warn("cache_write_failed")
		}
	}()
}

// writeEntry 磁盘上已有相同内容时只刷新访问时间，否则覆盖写入。
func (c *AssetCache) writeEntry(disk *DiskTier, key, path string, encode func() ([]byte, error)) error {
	payload, err := encode()
	if err != nil {
		return err
	}
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, payload) {
		_ = disk.Touch(key)
		return nil
	}
	if err := disk.Write(key, payload); err != nil {
		return err
	}
	c.stats.writes.Add(1)
	return nil
}

// GetData 先尝试完整对象缓存，未命中再查询 data-only 命名空间。
func (c *AssetCache) GetData(key string) ([]byte, bool) {
	if a, ok := c.Get(key); ok && a != nil {
		return a.Data, true
	}
	if !c.FileCacheEnabled() {
		return nil, false
	}

	data := c.disk.DataOnly()
	raw, err := data.ReadRaw(key)
	switch {
	case err == nil:
		_ = data.Touch(key)
		return raw, true
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrCorrupt):
		c.stats.corrupt.Add(1)
	default:
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_get_data",
			"key":    key,
		}).Warn("cache_disk_read_failed")
	}
	return nil, false
}

// Expire 从两层及两个命名空间中删除 key，对不存在的 key 安全。
func (c *AssetCache) Expire(key string) {
	c.memory.Remove(key)
	if !c.FileCacheEnabled() {
		return
	}
	for _, disk := range []*DiskTier{c.disk, c.disk.DataOnly()} {
		if err := disk.Remove(key); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_expire",
				"key":    key,
			}).Warn("cache_expire_failed")
		}
	}
}

// memoryAsset 返回内存层中的非负缓存条目，不计入命中统计。
func (c *AssetCache) memoryAsset(key string) (*asset.Asset, bool) {
	entry, ok := c.memory.Get(key)
	if !ok || entry.negative() {
		return nil, false
	}
	return entry.asset, true
}

// Contains 判断 key 是否已缓存，不会触发回源。
func (c *AssetCache) Contains(key string) bool {
	if c.memoryActive(key) && c.memory.Contains(key) {
		return true
	}
	return c.FileCacheEnabled() && c.disk.Exists(key)
}

// Clear 清空内存层与磁盘层并重置命中统计。
func (c *AssetCache) Clear() {
	c.ClearMemory()
	c.ClearDisk()
	c.stats.reset()
}

// ClearMemory 仅清空内存层。
func (c *AssetCache) ClearMemory() {
	c.memory.Clear()
}

// ClearDisk 仅清空磁盘层。
func (c *AssetCache) ClearDisk() {
	if err := c.disk.ClearAll(); err != nil {
		c.logger.WithError(err).WithField("action", "cache_clear").Warn("cache_clear_disk_failed")
	}
}

// ExpireOlderThan 立即删除访问时间早于 cutoff 的磁盘条目。
func (c *AssetCache) ExpireOlderThan(cutoff time.Time) SweepResult {
	if !c.FileCacheEnabled() {
		return SweepResult{}
	}
	return c.disk.Sweep(cutoff)
}

// Stats 返回命中统计快照。
func (c *AssetCache) Stats() Stats {
	return Stats{
		Requests:      c.stats.requests.Load(),
		MemoryHits:    c.stats.memoryHits.Load(),
		DiskHits:      c.stats.diskHits.Load(),
		Misses:        c.stats.misses.Load(),
		Collisions:    c.stats.collisions.Load(),
		CorruptReads:  c.stats.corrupt.Load(),
		Writes:        c.stats.writes.Load(),
		WriteErrors:   c.stats.writeErrors.Load(),
		WritesSkipped: c.stats.writeSkipped.Load(),
		WritesDropped: c.stats.writeDropped.Load(),
		MemoryEntries: c.memory.Count(),
		PendingWrites: c.writes.Len(),
		HotKeys:       c.hot.Len(),
	}
}

func (c *AssetCache) maybeLogHitRate(requests int64) {
	interval := int64(c.opts.HitRateLogInterval)
	if interval <= 0 || requests%interval != 0 {
		return
	}
	s := c.Stats()
	c.logger.WithFields(logrus.Fields{
		"action":              "cache_stats",
		"requests":            s.Requests,
		"memory_hit_pct":      fmt.Sprintf("%.2f", s.MemoryHitRate()),
		"disk_hit_pct":        fmt.Sprintf("%.2f", s.DiskHitRate()),
		"inflight_collisions": s.Collisions,
		"memory_entries":      s.MemoryEntries,
	}).Info("cache_hit_rate")
}

// Flush 等待所有后台写盘任务完成。
func (c *AssetCache) Flush() {
	c.wg.Wait()
}

// Close 停止接受新的写盘任务，放弃仍在排队的写入，并等待正在执行的写入结束。
// 需要落盘全部待写数据时先调用 Flush。
func (c *AssetCache) Close() error {
	c.closed.Store(true)
	c.cancelWrite()
	c.wg.Wait()
	return nil
}
