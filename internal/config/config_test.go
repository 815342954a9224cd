package config

import (
	"net/http"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	g := cfg.Global
	if g.FileExpiration.DurationValue() != 48*time.Hour {
		t.Fatalf("整数秒应解析为 Duration，实际 %s", g.FileExpiration.DurationValue())
	}
	if g.MemoryCacheExpiration.DurationValue() != 2*time.Minute {
		t.Fatalf("MemoryCacheExpiration 解析错误: %s", g.MemoryCacheExpiration.DurationValue())
	}
	if g.SweepInterval.DurationValue() != time.Hour || g.WaitTimeout.DurationValue() != 5*time.Second {
		t.Fatalf("默认 Duration 未生效: %+v", g)
	}
	if !g.FileCacheEnabled || g.MaxConcurrentWrites != 16 || g.HitRateLogInterval != 100 {
		t.Fatalf("默认值未注入: %+v", g)
	}
	if g.DeepScanFetchRate != 50 {
		t.Fatalf("DeepScanFetchRate 默认值错误: %v", g.DeepScanFetchRate)
	}
	if g.CacheDirectory == "" || g.CacheDirectory[0] != '/' {
		t.Fatalf("CacheDirectory 应转换为绝对路径: %s", g.CacheDirectory)
	}
	if len(cfg.Scenes) != 1 || cfg.Scenes[0].ID != "d8a8e5c2-6b7f-4c3e-9a4f-0f1e2d3c4b5a" {
		t.Fatalf("Scene ID 应被规范化: %+v", cfg.Scenes)
	}
}

func TestValidateRejectsMissingUpstream(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("缺少上游地址的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateDirectoryTiers(t *testing.T) {
	testCases := []struct {
		name      string
		tiers     int
		prefix    int
		shouldErr bool
	}{
		{"single tier", 1, 3, false},
		{"deep tiers", 3, 2, false},
		{"too many tiers", 4, 3, true},
		{"prefix too long", 1, 5, true},
		{"zero prefix", 1, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.DirectoryTiers = tc.tiers
			cfg.Global.TierPrefixLength = tc.prefix
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for tiers=%d prefix=%d", tc.tiers, tc.prefix)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestUpstreamTypeValidation(t *testing.T) {
	testCases := []struct {
		name      string
		upstream  UpstreamConfig
		shouldErr bool
	}{
		{"http ok", UpstreamConfig{Type: "http", URL: "https://assets.local"}, false},
		{"http missing url", UpstreamConfig{Type: "http"}, true},
		{"http bad scheme", UpstreamConfig{Type: "http", URL: "ftp://assets.local"}, true},
		{"minio ok", UpstreamConfig{Type: "minio", Endpoint: "localhost:9000", Bucket: "assets"}, false},
		{"minio missing bucket", UpstreamConfig{Type: "minio", Endpoint: "localhost:9000"}, true},
		{"minio endpoint with scheme", UpstreamConfig{Type: "minio", Endpoint: "http://localhost:9000", Bucket: "a"}, true},
		{"memory ok", UpstreamConfig{Type: "memory"}, false},
		{"unsupported type", UpstreamConfig{Type: "ftp"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Upstream = tc.upstream
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for %+v", tc.upstream)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for %+v: %v", tc.upstream, err)
			}
		})
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.AccessKey = "foo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 AccessKey 时应报错")
	}
}

func TestValidateScenes(t *testing.T) {
	cfg := validConfig()
	cfg.Scenes = append(cfg.Scenes, cfg.Scenes[0])
	if err := cfg.Validate(); err == nil {
		t.Fatalf("重复的 Scene ID 应报错")
	}

	cfg = validConfig()
	cfg.Scenes[0].Roots = []string{"not-a-uuid"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("非法根资产应报错")
	}

	cfg = validConfig()
	cfg.Scenes = nil
	cfg.Global.DeepScanBeforePurge = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("开启引用扫描但没有场景时应报错")
	}
}

func TestValidateRejectsAllTiersDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Global.FileCacheEnabled = false
	cfg.Global.MemoryCacheEnabled = false
	if err := cfg.Validate(); err == nil {
		t.Fatalf("两层都关闭时应报错")
	}
}

func TestOptionMappings(t *testing.T) {
	cfg := validConfig()
	cfg.Global.FileCacheEnabled = false
	cfg.Global.MemoryCacheEnabled = true

	co := cfg.CacheOptions(nil)
	if !co.DisableFileCache || !co.MemoryEnabled || co.Directory != "./data" {
		t.Fatalf("cache options mismatch: %+v", co)
	}
	so := cfg.SweeperOptions(nil)
	if so.Interval != 0 || so.FileExpiration != time.Hour {
		t.Fatalf("磁盘层关闭时不应启动清扫: %+v", so)
	}
	client := &http.Client{}
	uo := cfg.UpstreamOptions(client)
	if uo.Type != "http" || uo.Client != client || uo.Timeout != time.Second {
		t.Fatalf("upstream options mismatch: %+v", uo)
	}
	entries := cfg.SceneEntries()
	if len(entries) != 1 || entries[0].Roots[0] != cfg.Scenes[0].Roots[0] {
		t.Fatalf("scene entries mismatch: %+v", entries)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:            5000,
			CacheDirectory:        "./data",
			MemoryCacheExpiration: Duration(time.Minute),
			FileCacheEnabled:      true,
			FileExpiration:        Duration(time.Hour),
			SweepInterval:         Duration(time.Minute),
			DirectoryTiers:        1,
			TierPrefixLength:      3,
			WaitTimeout:           Duration(time.Second),
			MaxConcurrentWrites:   4,
			UpstreamTimeout:       Duration(time.Second),
		},
		Upstream: UpstreamConfig{Type: "http", URL: "https://assets.local"},
		Scenes: []SceneConfig{
			{
				ID:    "d8a8e5c2-6b7f-4c3e-9a4f-0f1e2d3c4b5a",
				Name:  "Sandbox",
				Roots: []string{"5748decc-f629-461c-9a36-a35a221fe21f"},
			},
		},
	}
}
