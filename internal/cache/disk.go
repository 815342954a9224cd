package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/asset"
)

var (
	// ErrNotFound 表示磁盘上不存在该条目。
	ErrNotFound = errors.New("cache entry not found")
	// ErrCorrupt 表示条目无法解码，对应文件已被删除。
	ErrCorrupt = errors.New("cache entry corrupt")
)

const (
	tempFilePattern = ".cache-*"

	// DataOnlyDir 是 data-only 命名空间在缓存根目录下的子目录。名称长于
	// 任何分层目录名（最多 4 个字符），与完整对象的路径不会重叠。
	DataOnlyDir = ".data-only"
)

// DiskTier 以 PathMapper 为布局管理磁盘缓存。所有改动目录结构的操作
// （写入、删除、清扫、清空）共享同一把粗粒度锁 mu；touch 只改时间戳，
// 使用独立的 touchMu，避免热点读被长时间的清扫阻塞。清扫删除单个文件前
// 会在 touchMu 下复查时间戳，锁顺序固定为 mu → touchMu。
type DiskTier struct {
	mapper PathMapper
	warnAt int
	logger *logrus.Logger
	now    func() time.Time

	*diskLocks
	data *DiskTier
}

// diskLocks 由根磁盘层与其 data-only 视图共享。
type diskLocks struct {
	mu      sync.Mutex
	touchMu sync.Mutex
}

// SweepResult 汇总一次过期清扫的结果。
type SweepResult struct {
	FilesDeleted int `json:"files_deleted"`
	DirsDeleted  int `json:"dirs_deleted"`
	FilesKept    int `json:"files_kept"`
	Errors       int `json:"errors"`
	Warnings     int `json:"warnings"`
}

// DiskStats 描述磁盘层当前占用。
type DiskStats struct {
	Files       int   `json:"files"`
	Directories int   `json:"directories"`
	Bytes       int64 `json:"bytes"`
}

// NewDiskTier 以 mapper.Root() 为根目录构建磁盘层，根目录不存在时自动创建。
func NewDiskTier(mapper PathMapper, warnAt int, logger *logrus.Logger, now func() time.Time) (*DiskTier, error) {
	if mapper.Root() == "" {
		return nil, errors.New("cache directory required")
	}
	abs, err := filepath.Abs(mapper.Root())
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if now == nil {
		now = time.Now
	}
	d := &DiskTier{
		mapper:    NewPathMapper(abs, mapper.tiers, mapper.prefix),
		warnAt:    warnAt,
		logger:    logger,
		now:       now,
		diskLocks: &diskLocks{},
	}
	d.data = &DiskTier{
		mapper:    NewPathMapper(filepath.Join(abs, DataOnlyDir), mapper.tiers, mapper.prefix),
		warnAt:    warnAt,
		logger:    logger,
		now:       now,
		diskLocks: d.diskLocks,
	}
	return d, nil
}

// DataOnly 返回 data-only 命名空间的视图。它与根磁盘层共用锁，
// 根目录上的 Sweep、ClearAll 与 Stats 同样覆盖该命名空间。
func (d *DiskTier) DataOnly() *DiskTier {
	if d.data == nil {
		return d
	}
	return d.data
}

// Mapper 返回磁盘层使用的路径映射器（根目录已绝对化）。
func (d *DiskTier) Mapper() PathMapper {
	return d.mapper
}

// Exists 判断 key 对应的文件是否存在；任何 stat 错误都视为不存在。
func (d *DiskTier) Exists(key string) bool {
	info, err := os.Stat(d.mapper.Path(key))
	return err == nil && !info.IsDir()
}

// Write 通过“临时文件 + rename”原子发布条目。rename 失败时丢弃临时文件，
// 宁可保留旧条目也不留下半写文件。
func (d *DiskTier) Write(key string, payload []byte) error {
	filePath := d.mapper.Path(key)
	dir := filepath.Dir(filePath)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}

	now := d.now()
	if err := os.Chtimes(filePath, now, now); err != nil {
		return err
	}
	return nil
}

// Read 读取并解码完整资产。解码失败时删除文件并返回 ErrCorrupt。
func (d *DiskTier) Read(key string) (*asset.Asset, error) {
	data, info, err := d.readFile(key)
	if err != nil {
		return nil, err
	}
	a, err := decodeAsset(data)
	if err != nil {
		d.discardCorrupt(key, info, err)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return a, nil
}

// ReadRaw 读取 data-only 条目的正文字节。
func (d *DiskTier) ReadRaw(key string) ([]byte, error) {
	data, info, err := d.readFile(key)
	if err != nil {
		return nil, err
	}
	raw, err := decodeRaw(data)
	if err != nil {
		d.discardCorrupt(key, info, err)
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return raw, nil
}

func (d *DiskTier) readFile(key string) ([]byte, fs.FileInfo, error) {
	f, err := os.Open(d.mapper.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, ErrNotFound
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

// discardCorrupt 仅在路径仍指向读到的同一文件时删除，避免误删并发发布的新文件。
func (d *DiskTier) discardCorrupt(key string, read fs.FileInfo, cause error) {
	filePath := d.mapper.Path(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	current, err := os.Stat(filePath)
	if err != nil || !os.SameFile(current, read) {
		return
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.logger.WithError(err).WithField("key", key).Warn("cache_corrupt_remove_failed")
		return
	}
	d.logger.WithFields(logrus.Fields{
		"action": "cache_read",
		"key":    key,
		"reason": cause.Error(),
	}).Warn("cache_corrupt_entry_removed")
}

// Touch 将条目的访问时间推进到当前时间；时间戳只会前进不会后退。
func (d *DiskTier) Touch(key string) error {
	filePath := d.mapper.Path(key)

	d.touchMu.Lock()
	defer d.touchMu.Unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	now := d.now()
	if !now.After(info.ModTime()) {
		return nil
	}
	return os.Chtimes(filePath, now, now)
}

// Remove 删除单个条目，不存在时返回 nil。
func (d *DiskTier) Remove(key string) error {
	filePath := d.mapper.Path(key)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	d.pruneEmptyParentsLocked(filepath.Dir(filePath))
	return nil
}

// pruneEmptyParentsLocked 自叶子目录向上删除空的分层目录，直到根目录。
func (d *DiskTier) pruneEmptyParentsLocked(dir string) {
	root := d.mapper.Root()
	for dir != root && strings.HasPrefix(dir, root) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Sweep 递归清理所有分层目录中修改时间早于 cutoff 的文件，并删除清理后变空的目录。
// 根目录下的普通文件（如 RegionStatus 标记）不参与清扫。
func (d *DiskTier) Sweep(cutoff time.Time) SweepResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result SweepResult
	root := d.mapper.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		d.logger.WithError(err).WithField("path", root).Warn("cache_sweep_read_failed")
		result.Errors++
		return result
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if d.sweepDirLocked(dir, cutoff, &result) {
			if err := os.Remove(dir); err == nil {
				result.DirsDeleted++
			}
		}
	}
	return result
}

// sweepDirLocked 返回清扫后目录是否为空。
func (d *DiskTier) sweepDirLocked(dir string, cutoff time.Time, result *SweepResult) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.WithError(err).WithField("path", dir).Warn("cache_sweep_read_failed")
		result.Errors++
		return false
	}

	remaining := 0
	for _, entry := range entries {
		child := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if d.sweepDirLocked(child, cutoff, result) {
				if err := os.Remove(child); err == nil {
					result.DirsDeleted++
					continue
				}
			}
			remaining++
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Errors++
				remaining++
			}
			continue
		}
		if info.ModTime().Before(cutoff) {
			removed, err := d.removeIfExpiredLocked(child, cutoff)
			if err != nil {
				d.logger.WithError(err).WithField("path", child).Warn("cache_sweep_remove_failed")
				result.Errors++
				remaining++
				continue
			}
			if removed {
				result.FilesDeleted++
				continue
			}
		}
		result.FilesKept++
		remaining++
	}

	if d.warnAt > 0 && remaining >= d.warnAt {
		result.Warnings++
		d.logger.WithFields(logrus.Fields{
			"action":  "cache_sweep",
			"path":    dir,
			"entries": remaining,
			"warn_at": d.warnAt,
		}).Warn("cache_directory_crowded")
	}
	return remaining == 0
}

// ClearAll 删除根目录下的所有分层目录。
func (d *DiskTier) ClearAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	root := d.mapper.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	var firstErr error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Stats 统计分层目录中的文件数、目录数与字节数。
func (d *DiskTier) Stats() DiskStats {
	var stats DiskStats
	root := d.mapper.Root()
	_ = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // 并发删除时继续统计
		}
		if path == root {
			return nil
		}
		if entry.IsDir() {
			stats.Directories++
			return nil
		}
		if filepath.Dir(path) == root {
			return nil
		}
		stats.Files++
		if info, err := entry.Info(); err == nil {
			stats.Bytes += info.Size()
		}
		return nil
	})
	return stats
}

// removeIfExpiredLocked 在 touchMu 下重新读取修改时间后再删除，
// 与并发 Touch 互斥：刚被读取的条目不会因清扫时看到的旧时间戳而被删掉。
func (d *DiskTier) removeIfExpiredLocked(filePath string, cutoff time.Time) (bool, error) {
	d.touchMu.Lock()
	defer d.touchMu.Unlock()

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	if !info.ModTime().Before(cutoff) {
		return false, nil
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, nil
}
