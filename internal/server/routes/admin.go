package routes

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/asset"
	"github.com/any-hub/asset-cache/internal/cache"
	"github.com/any-hub/asset-cache/internal/logging"
)

// AdminOptions 汇总管理接口依赖；Sweeper 为空时引用扫描接口返回 409。
type AdminOptions struct {
	Cache        *cache.AssetCache
	Sweeper      *cache.RetentionSweeper
	UpstreamType string
	Logger       *logrus.Logger
	// BaseContext 用于异步引用扫描，进程退出时应被取消。
	BaseContext context.Context
}

// RegisterCacheRoutes 暴露 /-/cache 诊断与维护接口。
func RegisterCacheRoutes(app *fiber.App, opts AdminOptions) {
	if app == nil || opts.Cache == nil {
		return
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	c := opts.Cache

	app.Get("/-/cache/status", func(ctx fiber.Ctx) error {
		return ctx.JSON(buildStatus(opts))
	})

	app.Post("/-/cache/clear", func(ctx fiber.Ctx) error {
		memory, err := queryBool(ctx, "memory")
		if err != nil {
			return writeError(ctx, fiber.StatusBadRequest, "invalid_memory_flag")
		}
		disk, err := queryBool(ctx, "disk")
		if err != nil {
			return writeError(ctx, fiber.StatusBadRequest, "invalid_disk_flag")
		}
		if ctx.Query("memory") == "" && ctx.Query("disk") == "" {
			memory, disk = true, true
		}
		switch {
		case memory && disk:
			c.Clear()
		case memory:
			c.ClearMemory()
		case disk:
			c.ClearDisk()
		}
		opts.Logger.WithFields(logging.CacheFields("cache_clear", "")).
			WithField("memory", memory).WithField("disk", disk).Info("cache_cleared")
		return ctx.JSON(fiber.Map{"memory": memory, "disk": disk})
	})

	app.Post("/-/cache/deepscan", func(ctx fiber.Ctx) error {
		if opts.Sweeper == nil {
			return writeError(ctx, fiber.StatusConflict, "deep_scan_unavailable")
		}
		async, err := queryBool(ctx, "async")
		if err != nil {
			return writeError(ctx, fiber.StatusBadRequest, "invalid_async_flag")
		}
		if async {
			go func() {
				if _, err := opts.Sweeper.DeepScan(opts.BaseContext); err != nil {
					opts.Logger.WithError(err).WithField("action", "cache_deep_scan").Warn("cache_deep_scan_failed")
				}
			}()
			return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
		}
		report, err := opts.Sweeper.DeepScan(ctx.Context())
		switch {
		case errors.Is(err, cache.ErrSweepInProgress):
			return writeError(ctx, fiber.StatusConflict, "sweep_in_progress")
		case errors.Is(err, cache.ErrScanNotConfigured):
			return writeError(ctx, fiber.StatusConflict, "deep_scan_unavailable")
		case err != nil:
			return err
		}
		return ctx.JSON(report)
	})

	app.Post("/-/cache/expire", func(ctx fiber.Ctx) error {
		raw := ctx.Query("before")
		if raw == "" {
			return writeError(ctx, fiber.StatusBadRequest, "before_required")
		}
		cutoff, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return writeError(ctx, fiber.StatusBadRequest, "invalid_before")
		}
		result := c.ExpireOlderThan(cutoff)
		opts.Logger.WithFields(logging.CacheFields("cache_expire_older", "")).
			WithField("cutoff", cutoff.Format(time.RFC3339)).
			WithField("files_deleted", result.FilesDeleted).Info("cache_expired_older")
		return ctx.JSON(result)
	})

	app.Delete("/-/cache/assets/:id", func(ctx fiber.Ctx) error {
		id := asset.NormalizeID(ctx.Params("id"))
		if id == "" {
			return writeError(ctx, fiber.StatusBadRequest, "invalid_asset_id")
		}
		c.Expire(id)
		opts.Logger.WithFields(logging.CacheFields("cache_expire", id)).Info("cache_entry_expired")
		return ctx.SendStatus(fiber.StatusNoContent)
	})
}

type statusPayload struct {
	Upstream string             `json:"upstream,omitempty"`
	Memory   memoryStatus       `json:"memory"`
	Disk     diskStatus         `json:"disk"`
	Stats    statsPayload       `json:"stats"`
	Sweeper  *sweeperStatus     `json:"sweeper,omitempty"`
	Scenes   []cache.SceneStamp `json:"scenes"`
}

type memoryStatus struct {
	Entries int `json:"entries"`
	HotKeys int `json:"hot_keys"`
}

type diskStatus struct {
	Enabled     bool   `json:"enabled"`
	Root        string `json:"root"`
	Files       int    `json:"files"`
	Directories int    `json:"directories"`
	Bytes       int64  `json:"bytes"`
}

type statsPayload struct {
	cache.Stats
	MemoryHitPct float64 `json:"memory_hit_pct"`
	DiskHitPct   float64 `json:"disk_hit_pct"`
}

type sweeperStatus struct {
	State      cache.SweeperState `json:"state"`
	LastReport *cache.SweepReport `json:"last_report,omitempty"`
}

func buildStatus(opts AdminOptions) statusPayload {
	c := opts.Cache
	stats := c.Stats()
	payload := statusPayload{
		Upstream: opts.UpstreamType,
		Memory:   memoryStatus{Entries: stats.MemoryEntries, HotKeys: stats.HotKeys},
		Disk:     diskStatus{Enabled: c.FileCacheEnabled(), Root: c.Disk().Mapper().Root()},
		Stats: statsPayload{
			Stats:        stats,
			MemoryHitPct: stats.MemoryHitRate(),
			DiskHitPct:   stats.DiskHitRate(),
		},
		Scenes: []cache.SceneStamp{},
	}
	if payload.Disk.Enabled {
		ds := c.Disk().Stats()
		payload.Disk.Files = ds.Files
		payload.Disk.Directories = ds.Directories
		payload.Disk.Bytes = ds.Bytes
		if stamps, err := c.Disk().Stamps(); err == nil && len(stamps) > 0 {
			payload.Scenes = stamps
		}
	}
	if opts.Sweeper != nil {
		payload.Sweeper = &sweeperStatus{State: opts.Sweeper.State(), LastReport: opts.Sweeper.LastReport()}
	}
	return payload
}

// queryBool 解析布尔查询参数，缺省为 false。
func queryBool(c fiber.Ctx, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
