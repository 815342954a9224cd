package scene

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
)

// DefaultMaxDepth 是引用链的默认最大深度。
const DefaultMaxDepth = 16

var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// AssetSource 为遍历提供资产读取，通常是 service.AssetService。
type AssetSource interface {
	Get(ctx context.Context, id string) (*asset.Asset, bool, error)
}

// RootSource 返回场景的根资产。
type RootSource interface {
	Roots(sceneID string) []string
}

// Gatherer 实现 cache.ReferenceGatherer。
type Gatherer struct {
	roots    RootSource
	assets   AssetSource
	maxDepth int
	logger   *logrus.Logger
}

// NewGatherer 构造 Gatherer；maxDepth <= 0 时使用 DefaultMaxDepth。
func NewGatherer(roots RootSource, assets AssetSource, maxDepth int, logger *logrus.Logger) *Gatherer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gatherer{roots: roots, assets: assets, maxDepth: maxDepth, logger: logger}
}

type queued struct {
	id    string
	depth int
}

// Gather 从根资产开始广度优先遍历。读取失败的 ID 仍计入结果，
// 由清扫器决定是回源还是记为缺失。
func (g *Gatherer) Gather(ctx context.Context, scene cache.Scene) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	var queue []queued
	for _, id := range g.roots.Roots(scene.ID) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		queue = append(queue, queued{id: id})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := queue[0]
		queue = queue[1:]

		a, _, err := g.assets.Get(ctx, item.id)
		if err != nil || a == nil {
			g.logger.WithError(err).WithFields(logrus.Fields{
				"action": "scene_gather",
				"scene":  scene.ID,
				"key":    item.id,
			}).Debug("scene_reference_unavailable")
			continue
		}
		if item.depth >= g.maxDepth || !a.Type.IsTextual() {
			continue
		}
		for _, ref := range ExtractReferences(a.Data) {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			queue = append(queue, queued{id: ref, depth: item.depth + 1})
		}
	}
	return seen, nil
}

// ExtractReferences 返回正文中出现的全部 UUID（小写、去重、保持首次出现顺序），忽略零值 UUID。
func ExtractReferences(data []byte) []string {
	matches := uuidPattern.FindAll(data, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		parsed, err := uuid.ParseBytes(m)
		if err != nil || parsed == uuid.Nil {
			continue
		}
		id := parsed.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
