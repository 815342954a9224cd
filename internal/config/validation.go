package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/any-hub/asset-cache/internal/upstream"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.CacheDirectory) == "" {
		return newFieldError("Global.CacheDirectory", "不能为空")
	}
	if g.MemoryCacheExpiration.DurationValue() <= 0 {
		return newFieldError("Global.MemoryCacheExpiration", "必须大于 0")
	}
	if g.MemoryCacheMaxEntries < 0 {
		return newFieldError("Global.MemoryCacheMaxEntries", "不能为负数")
	}
	if g.FileExpiration.DurationValue() <= 0 {
		return newFieldError("Global.FileExpiration", "必须大于 0")
	}
	if g.SweepInterval.DurationValue() < 0 {
		return newFieldError("Global.SweepInterval", "不能为负数")
	}
	if g.DirectoryTiers < 1 || g.DirectoryTiers > 3 {
		return newFieldError("Global.DirectoryTiers", "必须在 1-3")
	}
	if g.TierPrefixLength < 1 || g.TierPrefixLength > 4 {
		return newFieldError("Global.TierPrefixLength", "必须在 1-4")
	}
	if g.DirectoryWarnThreshold < 0 {
		return newFieldError("Global.DirectoryWarnThreshold", "不能为负数")
	}
	if g.HitRateLogInterval < 0 {
		return newFieldError("Global.HitRateLogInterval", "不能为负数")
	}
	if g.DeepScanFetchRate < 0 {
		return newFieldError("Global.DeepScanFetchRate", "不能为负数")
	}
	if g.WaitTimeout.DurationValue() <= 0 {
		return newFieldError("Global.WaitTimeout", "必须大于 0")
	}
	if g.MaxConcurrentWrites <= 0 {
		return newFieldError("Global.MaxConcurrentWrites", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if !g.MemoryCacheEnabled && !g.FileCacheEnabled {
		return newFieldError("Global.FileCacheEnabled", "内存层与磁盘层不能同时关闭")
	}

	if err := c.Upstream.validate(); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i := range c.Scenes {
		scene := &c.Scenes[i]
		parsed, err := uuid.Parse(strings.TrimSpace(scene.ID))
		if err != nil {
			return newFieldError(sceneField(scene.ID, "ID"), "必须为 UUID")
		}
		scene.ID = parsed.String()
		if _, exists := seen[scene.ID]; exists {
			return newFieldError(sceneField(scene.ID, "ID"), "重复")
		}
		seen[scene.ID] = struct{}{}

		if len(scene.Roots) == 0 {
			return newFieldError(sceneField(scene.ID, "Roots"), "至少需要一个根资产")
		}
		for j, root := range scene.Roots {
			parsedRoot, err := uuid.Parse(strings.TrimSpace(root))
			if err != nil {
				return newFieldError(sceneField(scene.ID, "Roots"), fmt.Sprintf("非法 UUID: %s", root))
			}
			scene.Roots[j] = parsedRoot.String()
		}
	}
	if g.DeepScanBeforePurge && len(c.Scenes) == 0 {
		return newFieldError("Global.DeepScanBeforePurge", "开启引用扫描时至少需要配置一个 Scene")
	}

	return nil
}

func (u *UpstreamConfig) validate() error {
	if _, ok := upstream.Resolve(u.Type); !ok {
		return newFieldError("Upstream.Type", "仅支持 "+strings.Join(upstream.Keys(), "|"))
	}
	if (u.AccessKey == "") != (u.SecretKey == "") {
		return newFieldError("Upstream.AccessKey/SecretKey", "必须同时提供或同时留空")
	}
	switch u.Type {
	case "http":
		if err := validateUpstreamURL(u.URL); err != nil {
			return fmt.Errorf("Upstream.URL: %w", err)
		}
	case "minio":
		if u.Endpoint == "" {
			return newFieldError("Upstream.Endpoint", "不能为空")
		}
		if strings.Contains(u.Endpoint, "://") {
			return newFieldError("Upstream.Endpoint", "不应包含协议头，请使用 UseSSL")
		}
		if u.Bucket == "" {
			return newFieldError("Upstream.Bucket", "不能为空")
		}
	}
	return nil
}

func validateUpstreamURL(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
