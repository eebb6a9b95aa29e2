package storage

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Health is the result of probing the artifact backend.
type Health struct {
	Backend   string    `json:"backend"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// CheckHealth pings the backend with a short timeout.
func (c *Coordinator) CheckHealth(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	h := Health{Backend: c.backend.Name(), Healthy: true, CheckedAt: time.Now().UTC()}
	if err := c.backend.Ping(ctx); err != nil {
		log.Warnf("[Artifact] Backend %s unhealthy: %v", h.Backend, err)
		h.Healthy = false
		h.Error = err.Error()
	}
	return h
}
