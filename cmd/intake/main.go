package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/pmbdev/intake/app/controllers"
	"github.com/pmbdev/intake/app/repository"
	"github.com/pmbdev/intake/internal/pkg/cache"
	"github.com/pmbdev/intake/internal/pkg/database"
	"github.com/pmbdev/intake/internal/pkg/env"
	"github.com/pmbdev/intake/internal/pkg/otp"
	"github.com/pmbdev/intake/internal/pkg/payment"
	"github.com/pmbdev/intake/internal/pkg/registration"
	"github.com/pmbdev/intake/internal/pkg/router"
	"github.com/pmbdev/intake/internal/pkg/storage"
	"github.com/pmbdev/intake/internal/pkg/whatsapp"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	backend, err := storage.NewBackendFromEnv(ctx)
	if err != nil {
		log.Fatalf("[Artifact] Storage backend unavailable: %v", err)
	}
	artifacts := storage.NewCoordinator(backend)

	otpManager := otp.NewManager(newOTPStore(), whatsapp.NewChannelFromEnv(), otp.LoadConfig())
	payments := payment.NewService(repos.Payment, payment.NewXenditClientFromEnv(), payment.LoadConfig())
	registrations := registration.NewService(repos.Registration, artifacts, otpManager, payments)

	controllers.InitializePmbController(controllers.PmbServices{
		OTP:          otpManager,
		Payments:     payments,
		Registration: registrations,
		Directory:    registration.NewAggregator(repos.Registration, registrations.Projector()),
		Artifacts:    artifacts,
		EchoOTP:      env.IsDev() && env.GetEnvBool("OTP_RETURN_CODE", false),
	})

	app := fiber.New(fiber.Config{
		AppName:   "pmb-intake",
		BodyLimit: env.GetEnvInt("HTTP_BODY_LIMIT_MB", 32) << 20,
		// the limiter keys on c.IP(), which must see the client behind the proxy
		ProxyHeader: env.GetEnv("HTTP_PROXY_HEADER", ""),
	})

	// recovery and logging
	app.Use(recover.New(), requestid.New(), logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// locally stored artifacts are served from the storage root
	if local, ok := backend.(*storage.LocalBackend); ok {
		app.Static("/storage", local.Root(), fiber.Static{
			CacheDuration: 10 * time.Second,
			MaxAge:        604800, // 7 days
		})
	}

	// SWAGGER / OPENAPI
	if doc := findFile("public/docs/openapi.yml"); doc != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/",
			FilePath: doc,
			Path:     "api",
			Title:    "PMB Intake API",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.LoadConfig(cache.NewLimiterStorage()))

	return app
}

// newOTPStore keeps challenges in Redis unless OTP_STORE=memory, which only
// suits a single instance.
func newOTPStore() otp.Store {
	if strings.EqualFold(env.GetEnv("OTP_STORE", "redis"), "memory") {
		log.Warn("[OTP] Using in-memory challenge store")
		return otp.NewMemoryStore()
	}
	return otp.NewRedisStore(cache.GetClient())
}

func findFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
