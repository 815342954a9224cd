package config

import (
	"os"
	"path/filepath"
	"testing"
)

// memoryUpstream 是内联配置的最小上游段，便于只关注全局字段。
const memoryUpstream = `
[Upstream]
Type = "memory"
`

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

// loadInline 把 content 写入临时 TOML 后调用 Load。
func loadInline(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset-cache.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return Load(path)
}
