package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	stampPrefix = "RegionStatus_"
	stampSuffix = ".fac"
)

// SceneStamp 记录某个场景最近一次引用扫描的时间（取自标记文件的修改时间）。
type SceneStamp struct {
	SceneID   string    `json:"scene_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

// StampPath 返回场景标记文件路径，位于缓存根目录，不参与过期清扫。
func (d *DiskTier) StampPath(sceneID string) string {
	return filepath.Join(d.mapper.Root(), stampPrefix+SanitizeKey(sceneID)+stampSuffix)
}

// WriteStamp 首次扫描时创建标记文件，之后只刷新修改时间。
func (d *DiskTier) WriteStamp(sceneID, note string) error {
	filePath := d.StampPath(sceneID)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := os.Stat(filePath); err == nil {
		return os.Chtimes(filePath, now, now)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	content := fmt.Sprintf("%s\nfirst scanned %s\n", note, now.UTC().Format(time.RFC3339))
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Chtimes(filePath, now, now)
}

// Stamps 列出所有场景标记，按场景 ID 排序。
func (d *DiskTier) Stamps() ([]SceneStamp, error) {
	entries, err := os.ReadDir(d.mapper.Root())
	if err != nil {
		return nil, err
	}
	var stamps []SceneStamp
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stampPrefix) || !strings.HasSuffix(name, stampSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		stamps = append(stamps, SceneStamp{
			SceneID:   strings.TrimSuffix(strings.TrimPrefix(name, stampPrefix), stampSuffix),
			ScannedAt: info.ModTime(),
		})
	}
	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].SceneID < stamps[j].SceneID
	})
	return stamps, nil
}
