package cache

import (
	"sync"
	"time"
)

const (
	defaultHotKeyThreshold = 2
	defaultHotKeyWindow    = 10 * time.Second
)

type accessCounter struct {
	requests  int
	saves     int
	lastTouch time.Time
}

// HotKeyPromoter 维护每个 key 的请求计数与“无值保存”计数。两个计数在
// 距上次触碰超过 window 后于下一次递增前归零，只有近期突发访问才会触发提升。
type HotKeyPromoter struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu       sync.Mutex
	counters map[string]*accessCounter
}

// NewHotKeyPromoter 构造提升器；threshold/window 非正时使用默认值 2 与 10s。
func NewHotKeyPromoter(threshold int, window time.Duration, now func() time.Time) *HotKeyPromoter {
	if threshold <= 0 {
		threshold = defaultHotKeyThreshold
	}
	if window <= 0 {
		window = defaultHotKeyWindow
	}
	if now == nil {
		now = time.Now
	}
	return &HotKeyPromoter{
		threshold: threshold,
		window:    window,
		now:       now,
		counters:  make(map[string]*accessCounter),
	}
}

// RecordAccess 记录一次请求并返回当前请求计数。
func (p *HotKeyPromoter) RecordAccess(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, now := p.touchLocked(key)
	if now.Sub(c.lastTouch) > p.window {
		c.requests = 0
	}
	c.requests++
	c.lastTouch = now
	return c.requests
}

// RecordSaveWithoutValue 记录一次“查询后无新值可存”并返回当前计数。
func (p *HotKeyPromoter) RecordSaveWithoutValue(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, now := p.touchLocked(key)
	if now.Sub(c.lastTouch) > p.window {
		c.saves = 0
	}
	c.saves++
	c.lastTouch = now
	return c.saves
}

// ShouldForceMemory 当任一计数在窗口内超过阈值时返回 true。
func (p *HotKeyPromoter) ShouldForceMemory(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.counters[key]
	if !ok {
		return false
	}
	if p.now().Sub(c.lastTouch) > p.window {
		return false
	}
	return c.requests > p.threshold || c.saves > p.threshold
}

// Len 返回被跟踪的 key 数量。
func (p *HotKeyPromoter) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counters)
}

func (p *HotKeyPromoter) touchLocked(key string) (*accessCounter, time.Time) {
	now := p.now()
	c, ok := p.counters[key]
	if !ok {
		c = &accessCounter{lastTouch: now}
		p.counters[key] = c
	}
	return c, now
}
