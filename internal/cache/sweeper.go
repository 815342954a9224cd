package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/any-hub/asset-cache/internal/asset"
)

var (
	// ErrSweepInProgress 表示已有一轮扫描/清扫在进行。
	ErrSweepInProgress = errors.New("retention sweep already running")
	// ErrScanNotConfigured 表示缺少场景来源或引用收集器，无法执行引用扫描。
	ErrScanNotConfigured = errors.New("reference scan not configured")
)

// Scene 是引用扫描的外部场景。
type Scene struct {
	ID   string
	Name string
}

// SceneSource 枚举当前存活的场景。
type SceneSource interface {
	Scenes() []Scene
}

// ReferenceGatherer 返回场景当前引用的全部资产 ID（含嵌套引用）。
type ReferenceGatherer interface {
	Gather(ctx context.Context, scene Scene) (map[string]struct{}, error)
}

// Fetcher 为引用扫描提供回源能力，成功获取的资产由实现方写入缓存。
type Fetcher interface {
	FetchAsset(ctx context.Context, id string) (*asset.Asset, error)
	IsKnownMissing(id string) bool
}

// SweeperState 描述清扫器当前阶段。
type SweeperState string

const (
	StateIdle     SweeperState = "idle"
	StateScanning SweeperState = "scanning"
	StateSweeping SweeperState = "sweeping"
)

const defaultScanConcurrency = 4

// SweeperOptions 控制定时清扫与引用扫描。
type SweeperOptions struct {
	Interval        time.Duration
	FileExpiration  time.Duration
	DeepScan        bool
	FetchRate       float64
	ScanConcurrency int

	Logger *logrus.Logger
	Now    func() time.Time
}

// ScanReport 汇总一次引用扫描。
type ScanReport struct {
	Scenes     int `json:"scenes"`
	Referenced int `json:"referenced"`
	Touched    int `json:"touched"`
	Fetched    int `json:"fetched"`
	Missing    int `json:"missing"`
	Errors     int `json:"errors"`
}

// SweepReport 汇总一轮 “扫描（可选）→ 清扫”。
type SweepReport struct {
	StartedAt time.Time   `json:"started_at"`
	Duration  string      `json:"duration"`
	Cutoff    time.Time   `json:"cutoff"`
	Scan      *ScanReport `json:"scan,omitempty"`
	Sweep     SweepResult `json:"sweep"`
}

// RetentionSweeper 定时删除过期磁盘条目；开启 DeepScan 时先刷新仍被场景引用的条目。
type RetentionSweeper struct {
	cache    *AssetCache
	scenes   SceneSource
	gatherer ReferenceGatherer
	fetcher  Fetcher
	opts     SweeperOptions
	logger   *logrus.Logger
	limiter  *rate.Limiter

	running atomic.Bool
	state   atomic.Value

	mu     sync.Mutex
	last   *SweepReport
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionSweeper 构造清扫器；scenes/gatherer/fetcher 可为 nil（此时跳过引用扫描）。
func NewRetentionSweeper(c *AssetCache, scenes SceneSource, gatherer ReferenceGatherer, fetcher Fetcher, opts SweeperOptions) *RetentionSweeper {
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	if opts.Now == nil {
		opts.Now = c.opts.Now
	}
	if opts.ScanConcurrency <= 0 {
		opts.ScanConcurrency = defaultScanConcurrency
	}
	limit := rate.Inf
	burst := 1
	if opts.FetchRate > 0 {
		limit = rate.Limit(opts.FetchRate)
		burst = max(1, int(opts.FetchRate))
	}
	s := &RetentionSweeper{
		cache:    c,
		scenes:   scenes,
		gatherer: gatherer,
		fetcher:  fetcher,
		opts:     opts,
		logger:   opts.Logger,
		limiter:  rate.NewLimiter(limit, burst),
	}
	s.state.Store(StateIdle)
	return s
}

// State 返回当前阶段。
func (s *RetentionSweeper) State() SweeperState {
	return s.state.Load().(SweeperState)
}

// LastReport 返回最近一轮的报告，尚未运行时为 nil。
func (s *RetentionSweeper) LastReport() *SweepReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Start 启动定时器；Interval <= 0 时不做任何事。
func (s *RetentionSweeper) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					s.logger.WithError(err).WithField("action", "cache_sweep").Warn("cache_sweep_failed")
				}
			}
		}
	}()
}

// Stop 停止定时器并等待当前轮次结束。
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce 执行一轮：可选引用扫描，然后以 now-FileExpiration 为界清扫。
func (s *RetentionSweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer func() {
		s.state.Store(StateIdle)
		s.running.Store(false)
	}()

	started := s.opts.Now()
	report := SweepReport{StartedAt: started}

	if s.opts.DeepScan && s.scenes != nil && s.gatherer != nil {
		scan := s.scan(ctx)
		report.Scan = &scan
	}

	s.state.Store(StateSweeping)
	report.Cutoff = s.opts.Now().Add(-s.opts.FileExpiration)
	report.Sweep = s.cache.disk.Sweep(report.Cutoff)
	report.Duration = s.opts.Now().Sub(started).String()

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"action":        "cache_sweep",
		"cutoff":        report.Cutoff.Format(time.RFC3339),
		"files_deleted": report.Sweep.FilesDeleted,
		"dirs_deleted":  report.Sweep.DirsDeleted,
		"files_kept":    report.Sweep.FilesKept,
		"errors":        report.Sweep.Errors,
		"deep_scan":     report.Scan != nil,
	}).Info("cache_sweep_done")
	return report, nil
}

// DeepScan 立即执行一次引用扫描（不清扫），供管理接口强制触发。
func (s *RetentionSweeper) DeepScan(ctx context.Context) (ScanReport, error) {
	if s.scenes == nil || s.gatherer == nil {
		return ScanReport{}, ErrScanNotConfigured
	}
	if !s.running.CompareAndSwap(false, true) {
		return ScanReport{}, ErrSweepInProgress
	}
	defer func() {
		s.state.Store(StateIdle)
		s.running.Store(false)
	}()
	return s.scan(ctx), nil
}

type scanCounters struct {
	scenes, referenced, touched, fetched, missing, errors atomic.Int64
}

// scan 并发遍历所有场景；单个条目或场景失败只记录日志，不中断整轮扫描。
func (s *RetentionSweeper) scan(ctx context.Context) ScanReport {
	s.state.Store(StateScanning)

	var (
		counts   scanCounters
		reported sync.Map
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ScanConcurrency)
	for _, scene := range s.scenes.Scenes() {
		g.Go(func() error {
			s.scanScene(gctx, scene, &counts, &reported)
			return nil
		})
	}
	_ = g.Wait()

	report := ScanReport{
		Scenes:     int(counts.scenes.Load()),
		Referenced: int(counts.referenced.Load()),
		Touched:    int(counts.touched.Load()),
		Fetched:    int(counts.fetched.Load()),
		Missing:    int(counts.missing.Load()),
		Errors:     int(counts.errors.Load()),
	}
	s.logger.WithFields(logrus.Fields{
		"action":     "cache_deep_scan",
		"scenes":     report.Scenes,
		"referenced": report.Referenced,
		"touched":    report.Touched,
		"fetched":    report.Fetched,
		"missing":    report.Missing,
		"errors":     report.Errors,
	}).Info("cache_deep_scan_done")
	return report
}

func (s *RetentionSweeper) scanScene(ctx context.Context, scene Scene, counts *scanCounters, reported *sync.Map) {
	fields := logrus.Fields{"action": "cache_deep_scan", "scene": scene.ID, "scene_name": scene.Name}

	ids, err := s.gatherer.Gather(ctx, scene)
	if err != nil {
		counts.errors.Add(1)
		s.logger.WithError(err).WithFields(fields).Warn("cache_scene_gather_failed")
		return
	}
	counts.scenes.Add(1)

	for id := range ids {
		if ctx.Err() != nil {
			return
		}
		counts.referenced.Add(1)
		s.refreshReference(ctx, id, counts, reported)
	}

	if err := s.cache.disk.WriteStamp(scene.ID, "scene "+scene.Name); err != nil {
		counts.errors.Add(1)
		s.logger.WithError(err).WithFields(fields).Warn("cache_scene_stamp_failed")
	}
}

// refreshReference 已缓存则 touch；未缓存则回源写入缓存；上游已知缺失的 ID 每轮只记录一次。
// 正在写盘的条目（通常由收集引用时的回源触发）先等待写入结束，不重复回源。
func (s *RetentionSweeper) refreshReference(ctx context.Context, id string, counts *scanCounters, reported *sync.Map) {
	disk := s.cache.disk
	path := disk.Mapper().Path(id)
	if s.cache.writes.InFlight(path) && !s.cache.writes.Wait(path, s.cache.opts.WaitTimeout) {
		// 写入完成时文件带有新的访问时间。
		counts.touched.Add(1)
		return
	}
	if disk.Exists(id) {
		if err := disk.Touch(id); err != nil && !errors.Is(err, ErrNotFound) {
			counts.errors.Add(1)
			s.logger.WithError(err).WithField("key", id).Warn("cache_reference_touch_failed")
			return
		}
		counts.touched.Add(1)
		return
	}
	if a, ok := s.cache.memoryAsset(id); ok {
		s.cache.Cache(id, a)
		counts.touched.Add(1)
		return
	}
	if s.fetcher == nil {
		return
	}
	if s.fetcher.IsKnownMissing(id) {
		s.reportMissing(id, counts, reported)
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	a, err := s.fetcher.FetchAsset(ctx, id)
	if err != nil || a == nil {
		if s.fetcher.IsKnownMissing(id) {
			s.reportMissing(id, counts, reported)
			return
		}
		counts.errors.Add(1)
		s.logger.WithError(err).WithField("key", id).Warn("cache_reference_fetch_failed")
		return
	}
	counts.fetched.Add(1)
}

func (s *RetentionSweeper) reportMissing(id string, counts *scanCounters, reported *sync.Map) {
	if _, seen := reported.LoadOrStore(id, struct{}{}); seen {
		return
	}
	counts.missing.Add(1)
	s.logger.WithFields(logrus.Fields{
		"action": "cache_deep_scan",
		"key":    id,
	}).Warn("cache_reference_missing")
}
