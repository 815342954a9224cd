package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// renamedKeys 记录已更名的旧字段，出现时直接报错提示新名称。
var renamedKeys = map[string]string{
	"StoragePath": "CacheDirectory",
	"CacheTTL":    "FileExpiration",
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectRenamedKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyUpstreamDefaults(&cfg.Upstream)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(cfg.Global.CacheDirectory)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDirectory = absDir

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDirectory", "./assetcache")
	v.SetDefault("MemoryCacheEnabled", false)
	v.SetDefault("MemoryCacheExpiration", "60s")
	v.SetDefault("MemoryCacheMaxEntries", 0)
	v.SetDefault("FileCacheEnabled", true)
	v.SetDefault("FileExpiration", "48h")
	v.SetDefault("SweepInterval", "1h")
	v.SetDefault("DirectoryTiers", 1)
	v.SetDefault("TierPrefixLength", 3)
	v.SetDefault("DirectoryWarnThreshold", 30000)
	v.SetDefault("HitRateLogInterval", 100)
	v.SetDefault("DeepScanBeforePurge", false)
	v.SetDefault("DeepScanFetchRate", 50)
	v.SetDefault("WaitOnInProgressWrites", false)
	v.SetDefault("WaitTimeout", "5s")
	v.SetDefault("MaxConcurrentWrites", 16)
	v.SetDefault("ReportCorruptAsFound", false)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Upstream.Type", "http")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.MemoryCacheExpiration.DurationValue() == 0 {
		g.MemoryCacheExpiration = Duration(time.Minute)
	}
	if g.FileExpiration.DurationValue() == 0 {
		g.FileExpiration = Duration(48 * time.Hour)
	}
	if g.WaitTimeout.DurationValue() == 0 {
		g.WaitTimeout = Duration(5 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.DirectoryTiers == 0 {
		g.DirectoryTiers = 1
	}
	if g.TierPrefixLength == 0 {
		g.TierPrefixLength = 3
	}
	if g.MaxConcurrentWrites == 0 {
		g.MaxConcurrentWrites = 16
	}
}

func applyUpstreamDefaults(u *UpstreamConfig) {
	u.Type = strings.ToLower(strings.TrimSpace(u.Type))
	if u.Type == "" {
		u.Type = "http"
	}
	u.URL = strings.TrimSpace(u.URL)
	u.Endpoint = strings.TrimSpace(u.Endpoint)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

func rejectRenamedKeys(v *viper.Viper) error {
	for old, replacement := range renamedKeys {
		if v.InConfig(old) {
			return newFieldError("Global."+old, "字段已更名，请改用 "+replacement)
		}
	}
	return nil
}
