package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-cache/internal/cache"
	"github.com/any-hub/asset-cache/internal/config"
	"github.com/any-hub/asset-cache/internal/logging"
	"github.com/any-hub/asset-cache/internal/scene"
	"github.com/any-hub/asset-cache/internal/server"
	"github.com/any-hub/asset-cache/internal/server/routes"
	"github.com/any-hub/asset-cache/internal/service"
	"github.com/any-hub/asset-cache/internal/upstream"
	"github.com/any-hub/asset-cache/internal/version"
)

const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["upstream"] = cfg.Upstream.Type
		fields["credentials"] = cfg.Upstream.AuthMode()
		fields["scenes"] = len(cfg.Scenes)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// CLI 启动遵循“配置 → 日志 → 缓存 → 上游 → 回源服务 → 清扫器 → Fiber server”顺序。
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_directory"] = cfg.Global.CacheDirectory
	fields["memory_cache"] = cfg.Global.MemoryCacheEnabled
	fields["file_cache"] = cfg.Global.FileCacheEnabled
	fields["upstream"] = cfg.Upstream.Type
	fields["credentials"] = cfg.Upstream.AuthMode()
	fields["scenes"] = len(cfg.Scenes)
	fields["deep_scan"] = cfg.Global.DeepScanBeforePurge
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	rt.sweeper.Start(ctx)
	serveErr := startHTTPServer(ctx, rt.app, cfg.Global.ListenPort, logger)
	rt.close()
	if serveErr != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", serveErr)
		return 1
	}
	return 0
}

// appRuntime 持有一次进程生命周期内共享的组件。
type appRuntime struct {
	cache   *cache.AssetCache
	service *service.AssetService
	sweeper *cache.RetentionSweeper
	app     *fiber.App
	logger  *logrus.Logger
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*appRuntime, error) {
	assetCache, err := cache.New(cfg.CacheOptions(logger))
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	httpClient := server.NewUpstreamClient(cfg)
	store, err := upstream.Open(cfg.UpstreamOptions(httpClient))
	if err != nil {
		_ = assetCache.Close()
		return nil, err
	}

	svc := service.New(assetCache, store, service.Options{Logger: logger})
	manifest := scene.NewManifest(cfg.SceneEntries())
	gatherer := scene.NewGatherer(manifest, svc, scene.DefaultMaxDepth, logger)
	sweeper := cache.NewRetentionSweeper(assetCache, manifest, gatherer, svc, cfg.SweeperOptions(logger))

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		_ = assetCache.Close()
		return nil, err
	}
	routes.RegisterAssetRoutes(app, svc, logger)
	routes.RegisterCacheRoutes(app, routes.AdminOptions{
		Cache:        assetCache,
		Sweeper:      sweeper,
		UpstreamType: cfg.Upstream.Type,
		Logger:       logger,
		BaseContext:  ctx,
	})
	server.Finalize(app)

	return &appRuntime{
		cache:   assetCache,
		service: svc,
		sweeper: sweeper,
		app:     app,
		logger:  logger,
	}, nil
}

// close 停止清扫器，落盘所有待写数据后关闭缓存。
func (rt *appRuntime) close() {
	rt.sweeper.Stop()
	rt.cache.Flush()
	if err := rt.cache.Close(); err != nil {
		rt.logger.WithError(err).WithField("action", "shutdown").Warn("cache_close_failed")
	}
	rt.logger.WithField("action", "shutdown").Info("缓存已关闭")
	_ = logging.Close(rt.logger)
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("asset-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ASSET_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// startHTTPServer 阻塞监听，ctx 取消后优雅关闭。
func startHTTPServer(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
