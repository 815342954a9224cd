package cache

import (
	"path/filepath"
	"strings"
)

const (
	defaultDirectoryTiers   = 1
	defaultTierPrefixLength = 3
	maxDirectoryTiers       = 3
	maxTierPrefixLength     = 4

	// invalidCharSubstitute 替换路径/文件名中的非法字符。
	invalidCharSubstitute = '_'
)

// PathMapper 将缓存键映射为分层目录下的文件路径，限制单目录条目数量。
type PathMapper struct {
	root   string
	tiers  int
	prefix int
}

// NewPathMapper 构造映射器，tiers 会被限制在 [1,3]，prefixLen 限制在 [1,4]。
func NewPathMapper(root string, tiers, prefixLen int) PathMapper {
	return PathMapper{
		root:   root,
		tiers:  clamp(tiers, 1, maxDirectoryTiers),
		prefix: clamp(prefixLen, 1, maxTierPrefixLength),
	}
}

// Root 返回缓存根目录。
func (m PathMapper) Root() string {
	return m.root
}

// Tiers 返回生效的目录层数。
func (m PathMapper) Tiers() int {
	return m.tiers
}

// Path 返回 key 对应的最终文件路径。纯函数，不访问文件系统。
func (m PathMapper) Path(key string) string {
	name := SanitizeKey(key)
	parts := make([]string, 0, m.tiers+2)
	parts = append(parts, m.root)
	for tier := 0; tier < m.tiers; tier++ {
		parts = append(parts, tierSegment(name, tier*m.prefix, m.prefix))
	}
	parts = append(parts, name)
	return filepath.Join(parts...)
}

// Dir 返回 key 所在的叶子目录。
func (m PathMapper) Dir(key string) string {
	return filepath.Dir(m.Path(key))
}

// SanitizeKey 将路径或文件名中不允许出现的字符替换为占位符，结果确定但不可逆。
func SanitizeKey(key string) string {
	if key == "" {
		return string(invalidCharSubstitute)
	}
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if isInvalidPathRune(r) {
			b.WriteRune(invalidCharSubstitute)
			continue
		}
		b.WriteRune(r)
	}
	name := b.String()
	// "." 与 ".." 会被 filepath.Join 解释为目录跳转。
	if strings.Trim(name, ".") == "" {
		name = strings.Repeat(string(invalidCharSubstitute), len(name))
	}
	return name
}

func isInvalidPathRune(r rune) bool {
	if r < 0x20 || r == 0x7f {
		return true
	}
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return false
}

// tierSegment 截取 name[start:start+length]，不足部分以占位符补齐。
func tierSegment(name string, start, length int) string {
	seg := make([]byte, length)
	for i := 0; i < length; i++ {
		idx := start + i
		if idx < len(name) {
			seg[i] = name[idx]
		} else {
			seg[i] = invalidCharSubstitute
		}
	}
	out := string(seg)
	if strings.Trim(out, ".") == "" {
		out = strings.Repeat(string(invalidCharSubstitute), length)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
