package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/erispulse/repo-mirror/internal/mirror"
	"github.com/erispulse/repo-mirror/internal/server"
	"github.com/erispulse/repo-mirror/internal/upstream"
)

const ctxBase = "https://raw.example.com/repo"

func TestHandleLogsRequestFields(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	// 需要 Host，否则 fasthttp 会把 //map.json 解析成协议相对地址。
	ctx.Request().Header.SetHost("mirror.local")
	ctx.Request().SetRequestURI("//map.json?ts=1")
	server.SetRequestID(ctx, "req-42")

	logBuf := &bytes.Buffer{}
	handler := newCtxHandler(t, logBuf, stubFetcher{
		ctxBase + "//map.json": {StatusCode: http.StatusOK, Body: []byte(`{}`)},
	})

	if err := handler.Handle(ctx); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if ct := string(ctx.Response().Header.ContentType()); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
	if got := string(ctx.Response().Header.Peek("X-Request-ID")); got != "req-42" {
		t.Fatalf("expected request id header req-42, got %s", got)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logBuf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON log line, got %s", logBuf.String())
	}
	if line["msg"] != "proxy_complete" || line["branch"] != BranchMirror || line["request_id"] != "req-42" {
		t.Fatalf("unexpected log fields: %v", line)
	}
	if line["path"] != "//map.json" || line["upstream"] != ctxBase+"//map.json" {
		t.Fatalf("log should carry raw path and upstream, got %v", line)
	}
}

func TestHandleUpstreamFailureLogsError(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("/packages.json")

	logBuf := &bytes.Buffer{}
	handler := newCtxHandler(t, logBuf, stubFetcher{})

	if err := handler.Handle(ctx); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	if body := string(ctx.Response().Body()); !strings.Contains(body, "upstream_failed") {
		t.Fatalf("expected upstream_failed body, got %s", body)
	}
	if !strings.Contains(logBuf.String(), "proxy_failed") || !strings.Contains(logBuf.String(), `"branch":"packages"`) {
		t.Fatalf("expected proxy_failed log for packages branch, got %s", logBuf.String())
	}
}

func TestHandleRefreshLogsOnceWithResult(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("/refresh-map")

	logBuf := &bytes.Buffer{}
	handler := newCtxHandler(t, logBuf, stubFetcher{})

	if err := handler.Handle(ctx); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	if status := ctx.Response().StatusCode(); status != fiber.StatusOK {
		t.Fatalf("expected 200 ack, got %d", status)
	}
	if strings.Contains(logBuf.String(), "proxy_failed") {
		t.Fatalf("refresh must not log proxy_failed, got %s", logBuf.String())
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logBuf.Bytes()), &line); err != nil {
		t.Fatalf("expected a single JSON log line, got %s", logBuf.String())
	}
	if line["msg"] != "proxy_complete" || line["branch"] != BranchRefresh {
		t.Fatalf("unexpected log fields: %v", line)
	}
	if line["refresh_result"] != "reprime_failed" {
		t.Fatalf("expected refresh_result reprime_failed, got %v", line["refresh_result"])
	}
}

func TestHandleDropsHopByHopHeaders(t *testing.T) {
	app := fiber.New()
	defer app.Shutdown()

	ctx := app.AcquireCtx(new(fasthttp.RequestCtx))
	defer app.ReleaseCtx(ctx)
	ctx.Request().SetRequestURI("/modules/foo.zip")

	header := http.Header{}
	header.Set("Connection", "keep-alive")
	header.Set("Content-Length", "999")
	header.Add("X-Upstream-Tag", "a")
	header.Add("X-Upstream-Tag", "b")
	handler := newCtxHandler(t, &bytes.Buffer{}, stubFetcher{
		ctxBase + "/modules/foo.zip": {StatusCode: http.StatusOK, Header: header, Body: []byte("zip")},
	})

	if err := handler.Handle(ctx); err != nil {
		t.Fatalf("Handle returned unexpected error: %v", err)
	}
	resp := &ctx.Response().Header
	if got := string(resp.Peek("Connection")); got == "keep-alive" {
		t.Fatalf("hop-by-hop header leaked: %s", got)
	}
	if resp.ContentLength() == 999 {
		t.Fatalf("upstream Content-Length must not be copied")
	}
	var tags []string
	for _, v := range resp.PeekAll("X-Upstream-Tag") {
		tags = append(tags, string(v))
	}
	if len(tags) != 2 {
		t.Fatalf("expected both X-Upstream-Tag values, got %v", tags)
	}
}

func newCtxHandler(t *testing.T, out *bytes.Buffer, fetcher stubFetcher) *Handler {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})

	directive := upstream.Directive{CacheEverything: true, TTL: time.Hour}
	handler, err := NewHandler(Options{
		Logger:      logger,
		Fetcher:     fetcher,
		Resolver:    mirror.NewResolver(fetcher, ctxBase, ".zip", directive),
		Invalidator: mirror.NewInvalidator(nil, fetcher, ctxBase+"/map.json", directive, nil),
		Classifier:  mirror.NewClassifier("/map.json", "/packages.json"),
		Routes: Routes{
			RedirectURL:  "https://www.erisdev.com",
			RefreshPath:  "/refresh-map",
			PackagesPath: "/packages.json",
			PackagesURL:  "https://raw.example.com/core/packages.json",
		},
		Directive: directive,
	})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return handler
}

// stubFetcher 按 URL 返回固定响应，未登记的 URL 视为网络故障。
type stubFetcher map[string]upstream.Response

func (s stubFetcher) Fetch(_ context.Context, url string, _ upstream.Directive) (*upstream.Response, error) {
	resp, ok := s[url]
	if !ok {
		return nil, upstream.ErrUpstreamUnavailable
	}
	resp.URL = url
	if resp.Header == nil {
		resp.Header = http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}}
	}
	return &resp, nil
}
