// Package routes registers the service's own endpoints under the /-/ prefix.
package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erispulse/repo-mirror/internal/config"
	"github.com/erispulse/repo-mirror/internal/version"
)

// RegisterDiagnosticsRoutes 挂载 /-/healthz 与 /-/metrics。
// 需在 server.NewApp 之后调用，路由器会把该前缀让给这里注册的处理器。
func RegisterDiagnosticsRoutes(app *fiber.App) {
	if app == nil {
		return
	}

	app.Get(config.DiagnosticsPrefix+"healthz", func(c fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	app.Get(config.DiagnosticsPrefix+"metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
