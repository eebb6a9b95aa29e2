package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/pmbdev/intake/app/controllers"
	"github.com/pmbdev/intake/internal/pkg/middleware"
)

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        h.cfg.APIRequestsPerMinute,
		Expiration: time.Minute,
		Storage:    h.cfg.LimiterStorage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "PMB intake API",
		})
	})

	pmb := api.Group("/pmb")

	// OTP sends cost a WhatsApp message each, so they get a tighter budget.
	otp := pmb.Group("/otp", limiter.New(limiter.Config{
		Max:        h.cfg.OTPRequestsPerMinute,
		Expiration: time.Minute,
		Storage:    h.cfg.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "otp:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Terlalu banyak permintaan OTP. Coba lagi sebentar.",
			})
		},
	}))
	otp.Post("/send", controllers.HandleOtpSend)
	otp.Post("/verify", controllers.HandleOtpVerify)

	payments := pmb.Group("/payments/xendit")
	payments.Post("/invoice", controllers.HandlePaymentInvoiceCreate)
	payments.Post("/status", controllers.HandlePaymentStatus)
	payments.Get("/:external_id", controllers.HandlePaymentShow)

	pmb.Post("/register/:variant", controllers.HandleRegister)

	admin := api.Group("/admin/pmb", middleware.AdminTokenMiddleware(h.cfg.AdminToken))
	admin.Get("/registrations", controllers.HandleAdminRegistrations)
	admin.Get("/summary", controllers.HandleAdminSummary)
	admin.Get("/lookup", controllers.HandleAdminLookup)
	admin.Get("/storage/health", controllers.HandleAdminStorageHealth)
	admin.Get("/:variant/:id", controllers.HandleAdminRegistrationShow)
	// Multipart edits also arrive as POST or PUT from HTML forms.
	admin.Patch("/:variant/:id", controllers.HandleAdminRegistrationUpdate)
	admin.Put("/:variant/:id", controllers.HandleAdminRegistrationUpdate)
	admin.Post("/:variant/:id", controllers.HandleAdminRegistrationUpdate)
	admin.Delete("/:variant/:id", controllers.HandleAdminRegistrationDelete)
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}
