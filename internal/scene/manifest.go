package scene

import (
	"sort"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
)

// Entry 描述一个存活场景及其根资产。
type Entry struct {
	ID    string
	Name  string
	Roots []string
}

// Manifest 是静态场景清单，实现 cache.SceneSource。
type Manifest struct {
	entries map[string]Entry
}

// NewManifest 规范化 ID 并按 ID 去重，后出现的条目覆盖先出现的。
func NewManifest(entries []Entry) *Manifest {
	m := &Manifest{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.ID = asset.NormalizeID(e.ID)
		if e.ID == "" {
			continue
		}
		roots := make([]string, 0, len(e.Roots))
		for _, r := range e.Roots {
			if r = asset.NormalizeID(r); r != "" {
				roots = append(roots, r)
			}
		}
		e.Roots = roots
		m.entries[e.ID] = e
	}
	return m
}

// Scenes 按 ID 排序返回场景列表。
func (m *Manifest) Scenes() []cache.Scene {
	out := make([]cache.Scene, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, cache.Scene{ID: e.ID, Name: e.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Roots 返回场景的根资产 ID。
func (m *Manifest) Roots(sceneID string) []string {
	return m.entries[asset.NormalizeID(sceneID)].Roots
}

// Len 返回场景数量。
func (m *Manifest) Len() int {
	return len(m.entries)
}
