package upstream

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory 根据 Options 构造具体后端。
type Factory func(Options) (Store, error)

// Backend 记录一个后端的静态信息，供配置校验和状态接口使用。
type Backend struct {
	Key         string
	Description string
	Factory     Factory
}

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func newRegistry() *registry {
	return &registry{backends: make(map[string]Backend)}
}

// Register 将后端加入全局注册表，重复键会返回错误。
func Register(b Backend) error {
	return globalRegistry.register(b)
}

// MustRegister 在注册失败时 panic，适合后端 init() 中调用。
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的后端。
func Resolve(key string) (Backend, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的后端列表。
func List() []Backend {
	return globalRegistry.list()
}

// Keys 返回所有已注册后端的键值。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, b := range items {
		result[i] = b.Key
	}
	return result
}

// Open 按 opts.Type 解析后端并构造实例。
func Open(opts Options) (Store, error) {
	b, ok := Resolve(opts.Type)
	if !ok {
		return nil, fmt.Errorf("未注册的上游类型: %s (可选: %s)", opts.Type, strings.Join(Keys(), "|"))
	}
	store, err := b.Factory(opts)
	if err != nil {
		return nil, fmt.Errorf("初始化上游 %s 失败: %w", b.Key, err)
	}
	return store, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(b Backend) error {
	key := normalizeKey(b.Key)
	if key == "" {
		return fmt.Errorf("backend key is required")
	}
	if b.Factory == nil {
		return fmt.Errorf("backend %s has no factory", key)
	}
	b.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[key]; exists {
		return fmt.Errorf("backend %s already registered", key)
	}
	r.backends[key] = b
	return nil
}

func (r *registry) resolve(key string) (Backend, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Backend{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[normalized]
	return b, ok
}

func (r *registry) list() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.backends) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.backends))
	for key := range r.backends {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Backend, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.backends[key])
	}
	return result
}
