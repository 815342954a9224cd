package config

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/cache"
	"github.com/any-hub/asset-cache/internal/scene"
	"github.com/any-hub/asset-cache/internal/upstream"
)

// CacheOptions 将全局配置映射为 cache.Options。
func (c *Config) CacheOptions(logger *logrus.Logger) cache.Options {
	g := c.Global
	return cache.Options{
		Directory:              g.CacheDirectory,
		MemoryEnabled:          g.MemoryCacheEnabled,
		MemoryExpiration:       g.MemoryCacheExpiration.DurationValue(),
		MemoryMaxEntries:       g.MemoryCacheMaxEntries,
		DisableFileCache:       !g.FileCacheEnabled,
		DirectoryTiers:         g.DirectoryTiers,
		TierPrefixLength:       g.TierPrefixLength,
		DirectoryWarnThreshold: g.DirectoryWarnThreshold,
		HitRateLogInterval:     g.HitRateLogInterval,
		WaitOnInProgressWrites: g.WaitOnInProgressWrites,
		WaitTimeout:            g.WaitTimeout.DurationValue(),
		MaxConcurrentWrites:    g.MaxConcurrentWrites,
		ReportCorruptAsFound:   g.ReportCorruptAsFound,
		Logger:                 logger,
	}
}

// SweeperOptions 将清扫相关配置映射为 cache.SweeperOptions；磁盘层关闭时 Interval 为 0。
func (c *Config) SweeperOptions(logger *logrus.Logger) cache.SweeperOptions {
	g := c.Global
	opts := cache.SweeperOptions{
		Interval:       g.SweepInterval.DurationValue(),
		FileExpiration: g.FileExpiration.DurationValue(),
		DeepScan:       g.DeepScanBeforePurge,
		FetchRate:      g.DeepScanFetchRate,
		Logger:         logger,
	}
	if !g.FileCacheEnabled {
		opts.Interval = 0
	}
	return opts
}

// UpstreamOptions 将 [Upstream] 映射为 upstream.Options，client 为共享的上游客户端。
func (c *Config) UpstreamOptions(client *http.Client) upstream.Options {
	u := c.Upstream
	return upstream.Options{
		Type:      u.Type,
		URL:       u.URL,
		Endpoint:  u.Endpoint,
		Bucket:    u.Bucket,
		Prefix:    u.Prefix,
		AccessKey: u.AccessKey,
		SecretKey: u.SecretKey,
		UseSSL:    u.UseSSL,
		Timeout:   c.Global.UpstreamTimeout.DurationValue(),
		Client:    client,
	}
}

// SceneEntries 将 [[Scene]] 列表映射为场景清单条目。
func (c *Config) SceneEntries() []scene.Entry {
	if len(c.Scenes) == 0 {
		return nil
	}
	out := make([]scene.Entry, len(c.Scenes))
	for i, s := range c.Scenes {
		out[i] = scene.Entry{ID: s.ID, Name: s.Name, Roots: append([]string(nil), s.Roots...)}
	}
	return out
}
