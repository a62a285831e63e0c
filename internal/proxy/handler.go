package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/logging"
	"github.com/erispulse/repo-mirror/internal/mirror"
	"github.com/erispulse/repo-mirror/internal/server"
	"github.com/erispulse/repo-mirror/internal/upstream"
)

// 请求分支，用于日志字段与指标标签。
const (
	BranchRedirect = "redirect"
	BranchRefresh  = "refresh"
	BranchPackages = "packages"
	BranchMirror   = "mirror"
)

// Routes 描述四个分支的保留路径与固定地址。
type Routes struct {
	RedirectURL  string
	RefreshPath  string
	PackagesPath string
	PackagesURL  string
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Logger      *logrus.Logger
	Fetcher     mirror.Fetcher
	Resolver    *mirror.Resolver
	Invalidator *mirror.Invalidator
	Classifier  mirror.Classifier
	Routes      Routes
	Directive   upstream.Directive
}

// Handler 按路径把请求分派到 重定向 / 刷新 / packages / 镜像 四个分支，
// 并把上游（或缓存）响应原样写回，必要时覆盖 Content-Type。
type Handler struct {
	logger      *logrus.Logger
	fetcher     mirror.Fetcher
	resolver    *mirror.Resolver
	invalidator *mirror.Invalidator
	classifier  mirror.Classifier
	routes      Routes
	directive   upstream.Directive
}

// NewHandler constructs a Handler; fetcher, resolver and invalidator are required.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Invalidator == nil {
		return nil, errors.New("invalidator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Handler{
		logger:      logger,
		fetcher:     opts.Fetcher,
		resolver:    opts.Resolver,
		invalidator: opts.Invalidator,
		classifier:  opts.Classifier,
		routes:      opts.Routes,
		directive:   opts.Directive,
	}, nil
}

// Handle 实现 server.ProxyHandler。方法不参与分派，查询串被忽略。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	path := server.RequestPath(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch path {
	case "/":
		return h.redirect(c, path, started)
	case h.routes.RefreshPath:
		return h.refresh(c, ctx, path, started)
	case h.routes.PackagesPath:
		return h.packages(c, ctx, path, started)
	default:
		return h.mirror(c, ctx, path, started)
	}
}

func (h *Handler) redirect(c fiber.Ctx, path string, started time.Time) error {
	h.logResult(c, BranchRedirect, path, h.routes.RedirectURL, fiber.StatusMovedPermanently, false, started, nil)
	ResponsesTotal.WithLabelValues(BranchRedirect, strconv.Itoa(fiber.StatusMovedPermanently)).Inc()
	return c.Redirect().Status(fiber.StatusMovedPermanently).To(h.routes.RedirectURL)
}

// refresh 无论中间步骤成败都返回确认响应，且不做 JSON 覆盖（确认响应本身即 JSON）。
// 失败细节已由 Invalidator 以 warn 记录，这里只追加 refresh_result 字段。
func (h *Handler) refresh(c fiber.Ctx, ctx context.Context, path string, started time.Time) error {
	ack, report := h.invalidator.Refresh(ctx)
	fields := h.requestFields(c, BranchRefresh, path, h.invalidator.MapURL(), report.UpstreamStatus, false, started)
	fields["refresh_result"] = report.Result()
	h.logger.WithFields(fields).Info("proxy_complete")
	return h.writeResponse(c, BranchRefresh, ack)
}

func (h *Handler) packages(c fiber.Ctx, ctx context.Context, path string, started time.Time) error {
	resp, err := h.fetcher.Fetch(ctx, h.routes.PackagesURL, h.directive)
	if err != nil {
		h.logResult(c, BranchPackages, path, h.routes.PackagesURL, 0, false, started, err)
		return h.writeError(c, BranchPackages, fiber.StatusBadGateway, "upstream_failed")
	}
	h.logResult(c, BranchPackages, path, resp.URL, resp.StatusCode, resp.CacheHit, started, nil)
	return h.writeResponse(c, BranchPackages, h.finalize(path, resp))
}

func (h *Handler) mirror(c fiber.Ctx, ctx context.Context, path string, started time.Time) error {
	resp, err := h.resolver.Resolve(ctx, path)
	if err != nil {
		h.logResult(c, BranchMirror, path, h.resolver.URLFor(path), 0, false, started, err)
		return h.writeError(c, BranchMirror, fiber.StatusBadGateway, "upstream_failed")
	}
	h.logResult(c, BranchMirror, path, resp.URL, resp.StatusCode, resp.CacheHit, started, nil)
	return h.writeResponse(c, BranchMirror, h.finalize(path, resp))
}

// finalize 对 JSON 类路径强制 Content-Type，状态码与正文保持不变。
func (h *Handler) finalize(path string, resp *upstream.Response) *upstream.Response {
	if h.classifier.IsJSON(path) {
		return resp.WithContentType(mirror.ContentTypeJSON)
	}
	return resp
}

func (h *Handler) writeResponse(c fiber.Ctx, branch string, resp *upstream.Response) error {
	copyResponseHeaders(c, resp.Header)
	if resp.URL != "" {
		c.Set("X-Mirror-Upstream", resp.URL)
	}
	c.Set("X-Mirror-Cache-Hit", strconv.FormatBool(resp.CacheHit))
	if requestID := server.RequestID(c); requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	ResponsesTotal.WithLabelValues(branch, strconv.Itoa(resp.StatusCode)).Inc()
	return c.Status(resp.StatusCode).Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, branch string, status int, code string) error {
	ResponsesTotal.WithLabelValues(branch, strconv.Itoa(status)).Inc()
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	c fiber.Ctx,
	branch string,
	path string,
	upstreamURL string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := h.requestFields(c, branch, path, upstreamURL, status, cacheHit, started)
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func (h *Handler) requestFields(
	c fiber.Ctx,
	branch string,
	path string,
	upstreamURL string,
	status int,
	cacheHit bool,
	started time.Time,
) logrus.Fields {
	fields := logging.RequestFields(branch, path, upstreamURL, status, cacheHit)
	fields["action"] = "proxy"
	fields["method"] = c.Method()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID := server.RequestID(c); requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// copyResponseHeaders 复制上游头部，跳过逐跳头与 Content-Length（由正文长度重新计算）。
func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || http.CanonicalHeaderKey(key) == fiber.HeaderContentLength {
			continue
		}
		for i, value := range values {
			if i == 0 {
				c.Set(key, value)
				continue
			}
			c.Response().Header.Add(key, value)
		}
	}
}
