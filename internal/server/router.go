package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/erispulse/repo-mirror/internal/config"
)

// ProxyHandler describes the component that answers every mirrored path.
// It allows injecting fake handlers during tests.
type ProxyHandler interface {
	Handle(fiber.Ctx) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Proxy      ProxyHandler
	ListenPort int
	// Diagnostics reserves the /-/ prefix for routes registered after NewApp.
	// When false those paths are mirrored like any other.
	Diagnostics bool
}

const contextKeyRequestID = "_mirror_request_id"

// NewApp builds a Fiber application with request-ID middleware, panic
// recovery and a method-agnostic catch-all route.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		StrictRouting: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if opts.Diagnostics && isDiagnosticsPath(RequestPath(c)) {
			return c.Next()
		}
		return opts.Proxy.Handle(c)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，写入 Locals 与响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		SetRequestID(c, uuid.NewString())
		return c.Next()
	}
}

// errorHandler 将未处理的错误统一渲染为 JSON，并记录一条结构化日志。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		code := "internal_error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			code = errorCode(fe.Code)
		}

		logger.WithFields(logrus.Fields{
			"action":     "http_error",
			"path":       RequestPath(c),
			"status":     status,
			"request_id": RequestID(c),
		}).WithError(err).Error("request_failed")

		return c.Status(status).JSON(fiber.Map{"error": code})
	}
}

// errorCode 把状态码转换为 snake_case 错误码，例如 404 -> not_found。
func errorCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "internal_error"
	}
	return strings.ToLower(strings.ReplaceAll(text, " ", "_"))
}

// SetRequestID 记录请求 ID 并写入 X-Request-ID 响应头。
func SetRequestID(c fiber.Ctx, reqID string) {
	c.Locals(contextKeyRequestID, reqID)
	c.Set("X-Request-ID", reqID)
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// RequestPath 返回客户端发送的原始路径（未做斜杠合并，不含查询串），
// 保证 //map.json 这类路径按原样参与分发与上游拼接。
func RequestPath(c fiber.Ctx) string {
	uri := c.Request().URI()
	if raw := uri.PathOriginal(); len(raw) > 0 {
		p := string(raw)
		if idx := strings.IndexByte(p, '?'); idx >= 0 {
			p = p[:idx]
		}
		if p != "" {
			return p
		}
	}
	if p := string(uri.Path()); p != "" {
		return p
	}
	return "/"
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, config.DiagnosticsPrefix)
}
