// Package whatsapp delivers one-time codes and notices to applicants.
package whatsapp

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/env"
	"github.com/pmbdev/intake/internal/pkg/phone"
)

const (
	DriverLog  = "log"
	DriverHTTP = "http"

	ProviderGeneric = "generic"
	ProviderFonnte  = "fonnte"

	defaultTimeout = 15 * time.Second
)

// Channel sends a text message to a normalized phone number.
type Channel interface {
	Send(ctx context.Context, destination, message string) error
}

// NewChannelFromEnv picks the transport configured by WA_DRIVER.
func NewChannelFromEnv() Channel {
	driver := strings.ToLower(strings.TrimSpace(env.GetEnv("WA_DRIVER", DriverLog)))
	switch driver {
	case DriverHTTP:
		return NewHTTPChannel(HTTPConfig{
			Provider:    strings.ToLower(strings.TrimSpace(env.GetEnv("WA_HTTP_PROVIDER", ProviderGeneric))),
			Endpoint:    strings.TrimSpace(env.GetEnv("WA_HTTP_ENDPOINT", "")),
			Token:       strings.TrimSpace(env.GetEnv("WA_HTTP_TOKEN", "")),
			AuthHeader:  env.GetEnv("WA_HTTP_AUTH_HEADER", "Authorization"),
			AuthPrefix:  env.GetEnv("WA_HTTP_AUTH_PREFIX", "Bearer "),
			CountryCode: env.GetEnv("WA_COUNTRY_CODE", phone.DefaultCountryCode),
			Timeout:     env.GetEnvSeconds("WA_HTTP_TIMEOUT", defaultTimeout),
		})
	default:
		if driver != DriverLog {
			log.Warnf("[WhatsApp] Unknown WA_DRIVER %q, falling back to log driver", driver)
		}
		return LogChannel{}
	}
}

// LogChannel writes the delivery to the application log instead of sending it.
type LogChannel struct{}

func (LogChannel) Send(ctx context.Context, destination, message string) error {
	_ = ctx
	log.Infof("[WhatsApp] (log driver) to=%s chars=%d", phone.Mask(destination), len(message))
	return nil
}
