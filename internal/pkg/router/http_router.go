package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmbdev/intake/app/controllers"
)

// HttpRouter installs the non-API endpoints: gateway callbacks, liveness
// and the Prometheus scrape target.
type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	webhooks := app.Group("/webhooks")
	webhooks.Post("/xendit/invoice", controllers.HandleXenditWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
