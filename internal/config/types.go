package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：日志、缓存分层、清扫与写入协调。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	CacheDirectory         string   `mapstructure:"CacheDirectory"`
	MemoryCacheEnabled     bool     `mapstructure:"MemoryCacheEnabled"`
	MemoryCacheExpiration  Duration `mapstructure:"MemoryCacheExpiration"`
	MemoryCacheMaxEntries  int      `mapstructure:"MemoryCacheMaxEntries"`
	FileCacheEnabled       bool     `mapstructure:"FileCacheEnabled"`
	FileExpiration         Duration `mapstructure:"FileExpiration"`
	SweepInterval          Duration `mapstructure:"SweepInterval"`
	DirectoryTiers         int      `mapstructure:"DirectoryTiers"`
	TierPrefixLength       int      `mapstructure:"TierPrefixLength"`
	DirectoryWarnThreshold int      `mapstructure:"DirectoryWarnThreshold"`
	HitRateLogInterval     int      `mapstructure:"HitRateLogInterval"`
	DeepScanBeforePurge    bool     `mapstructure:"DeepScanBeforePurge"`
	DeepScanFetchRate      float64  `mapstructure:"DeepScanFetchRate"`
	WaitOnInProgressWrites bool     `mapstructure:"WaitOnInProgressWrites"`
	WaitTimeout            Duration `mapstructure:"WaitTimeout"`
	MaxConcurrentWrites    int      `mapstructure:"MaxConcurrentWrites"`
	ReportCorruptAsFound   bool     `mapstructure:"ReportCorruptAsFound"`
	UpstreamTimeout        Duration `mapstructure:"UpstreamTimeout"`
}

// UpstreamConfig 决定缓存背后的权威资产存储。
type UpstreamConfig struct {
	Type      string `mapstructure:"Type"`
	URL       string `mapstructure:"URL"`
	Endpoint  string `mapstructure:"Endpoint"`
	Bucket    string `mapstructure:"Bucket"`
	Prefix    string `mapstructure:"Prefix"`
	AccessKey string `mapstructure:"AccessKey"`
	SecretKey string `mapstructure:"SecretKey"`
	UseSSL    bool   `mapstructure:"UseSSL"`
}

// SceneConfig 描述引用扫描需要遍历的一个场景。
type SceneConfig struct {
	ID    string   `mapstructure:"ID"`
	Name  string   `mapstructure:"Name"`
	Roots []string `mapstructure:"Roots"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Upstream UpstreamConfig `mapstructure:"Upstream"`
	Scenes   []SceneConfig  `mapstructure:"Scene"`
}

// HasCredentials 表示上游是否配置了完整凭证。
func (u UpstreamConfig) HasCredentials() bool {
	return u.AccessKey != "" && u.SecretKey != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (u UpstreamConfig) AuthMode() string {
	if u.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}
