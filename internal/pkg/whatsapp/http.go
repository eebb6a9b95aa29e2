package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/phone"
)

// HTTPConfig describes a WhatsApp HTTP gateway.
type HTTPConfig struct {
	Provider    string
	Endpoint    string
	Token       string
	AuthHeader  string
	AuthPrefix  string
	CountryCode string
	Timeout     time.Duration
}

// HTTPChannel posts messages to a generic JSON gateway or to Fonnte.
type HTTPChannel struct {
	Config     HTTPConfig
	HTTPClient *http.Client
}

func NewHTTPChannel(cfg HTTPConfig) *HTTPChannel {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGeneric
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = phone.DefaultCountryCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &HTTPChannel{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPChannel) Send(ctx context.Context, destination, message string) error {
	if c.Config.Endpoint == "" || c.Config.Token == "" {
		return errors.New("whatsapp: WA_HTTP_ENDPOINT / WA_HTTP_TOKEN are not configured")
	}
	digits := phone.Normalize(destination, c.Config.CountryCode)
	if digits == "" {
		return errors.New("whatsapp: destination is empty after normalization")
	}

	req, err := c.buildRequest(ctx, digits, message)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	log.Debugf("[WhatsApp] %s delivered to %s (status=%d)", c.Config.Provider, phone.Mask(digits), resp.StatusCode)
	return nil
}

func (c *HTTPChannel) buildRequest(ctx context.Context, digits, message string) (*http.Request, error) {
	if c.Config.Provider == ProviderFonnte {
		form := url.Values{}
		form.Set("target", digits)
		form.Set("message", message)
		form.Set("countryCode", c.Config.CountryCode)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.Endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		// Fonnte expects the raw token, no scheme.
		req.Header.Set("Authorization", c.Config.Token)
		return req, nil
	}

	payload, err := json.Marshal(map[string]string{"phone": digits, "message": message})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.Config.AuthHeader, c.Config.AuthPrefix+c.Config.Token)
	return req, nil
}
