package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/erispulse/repo-mirror/internal/cache"
	"github.com/erispulse/repo-mirror/internal/config"
	"github.com/erispulse/repo-mirror/internal/logging"
	"github.com/erispulse/repo-mirror/internal/proxy"
	"github.com/erispulse/repo-mirror/internal/server"
	"github.com/erispulse/repo-mirror/internal/server/routes"
	"github.com/erispulse/repo-mirror/internal/upstream"
	"github.com/erispulse/repo-mirror/internal/version"
)

// configEnv 指定配置文件路径的环境变量，优先级低于 --config。
const configEnv = config.EnvPrefix + "_CONFIG"

const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	showHelp    bool
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
	if opts.showHelp {
		return 0
	}
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
		fields["cache"] = cfg.Global.CacheSummary()
		fields["repo_base"] = cfg.Mirror.RepoBase
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, closeStore, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("cache_close_failed")
		}
	}()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache"] = cfg.Global.CacheSummary()
	fields["cache_ttl"] = cfg.Global.CacheTTL.DurationValue().String()
	fields["repo_base"] = cfg.Mirror.RepoBase
	fields["diagnostics"] = cfg.Global.EnableDiagnostics
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(ctx, app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 按“缓存 → 上游客户端 → 镜像处理器 → Fiber app”的顺序组装服务，
// fetcher 与刷新逻辑共享同一个缓存实例。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, func() error, error) {
	store, closeStore, err := cache.Open(ctx, cfg.Global)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	fetcher := upstream.NewFetcher(server.NewUpstreamClient(cfg), store, logger,
		upstream.WithMaxBodyBytes(cfg.Global.UpstreamMaxBodyBytes))
	handler, err := proxy.NewFromConfig(cfg, fetcher, store, logger)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Proxy:       handler,
		ListenPort:  cfg.Global.ListenPort,
		Diagnostics: cfg.Global.EnableDiagnostics,
	})
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}
	if cfg.Global.EnableDiagnostics {
		routes.RegisterDiagnosticsRoutes(app)
	}
	return app, closeStore, nil
}

// serve 阻塞监听，直到 ctx 被信号取消后优雅关闭。
func serve(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("收到退出信号，正在关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 路径为空时由 config.Load 尝试 ./config.toml，缺失则使用内置默认值。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("repo-mirror", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 "+configEnv+" 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fs.SetOutput(stdOut)
			fmt.Fprintln(stdOut, "Usage: repo-mirror [flags]")
			fs.PrintDefaults()
			return cliOptions{showHelp: true}, nil
		}
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("解析参数失败: 不支持的位置参数 %v", fs.Args())
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
