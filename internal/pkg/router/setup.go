package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pmbdev/intake/internal/pkg/env"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routers need besides the controllers.
type Config struct {
	AdminToken string
	// LimiterStorage backs the rate limiters; nil keeps counters in memory.
	LimiterStorage       fiber.Storage
	APIRequestsPerMinute int
	OTPRequestsPerMinute int
}

func LoadConfig(storage fiber.Storage) Config {
	return Config{
		AdminToken:           env.GetEnv("ADMIN_API_TOKEN", ""),
		LimiterStorage:       storage,
		APIRequestsPerMinute: env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 120),
		OTPRequestsPerMinute: env.GetEnvInt("OTP_RATE_LIMIT_PER_MINUTE", 5),
	}
}

func InstallRouter(app *fiber.App, cfg Config) {
	setup(app, NewHttpRouter(), NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
