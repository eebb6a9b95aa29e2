package cache

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis"

	"github.com/pmbdev/intake/internal/pkg/env"
)

// limiterDatabase keeps rate-limit counters apart from OTP challenges in DB 0.
const limiterDatabase = 1

// NewLimiterStorage returns a fiber.Storage on the same Redis server as the
// cache client, in its own logical database.
func NewLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	username := ""

	if c := GetClient(); c != nil {
		opts := c.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if opts.Password != "" {
			password = opts.Password
		}
		username = opts.Username
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Database: env.GetEnvInt("LIMITER_CACHE_DB", limiterDatabase),
		Reset:    false,
	})
}
