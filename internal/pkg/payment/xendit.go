package payment

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

	"github.com/shopspring/decimal"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/env"
)

const defaultXenditAPIBase = "https://api.xendit.co"

// XenditClient talks to the invoice API with Basic auth: the secret key as
// user name and an empty password.
type XenditClient struct {
	APIBase   string
	SecretKey string

	HTTPClient *http.Client
}

func NewXenditClientFromEnv() *XenditClient {
	return &XenditClient{
		APIBase:   strings.TrimRight(strings.TrimSpace(env.GetEnv("XENDIT_API_BASE", defaultXenditAPIBase)), "/"),
		SecretKey: strings.TrimSpace(env.GetEnv("XENDIT_SECRET_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *GatewayError) Error() string { return e.Message }

func (c *XenditClient) CreateInvoice(ctx context.Context, p CreateInvoiceParams) (*Invoice, error) {
	// amount goes out as a JSON number, not decimal's quoted default.
	body, err := json.Marshal(struct {
		CreateInvoiceParams
		Amount json.Number `json:"amount"`
	}{CreateInvoiceParams: p, Amount: json.Number(p.Amount.String())})
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, "/v2/invoices", body)
}

func (c *XenditClient) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, errors.New("invoice id is required")
	}
	return c.do(ctx, http.MethodGet, "/v2/invoices/"+url.PathEscape(invoiceID), nil)
}

func (c *XenditClient) do(ctx context.Context, method, path string, payload []byte) (*Invoice, error) {
	if c.SecretKey == "" {
		return nil, apperr.Upstream(errors.New("XENDIT_SECRET_KEY is not configured"))
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBase+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("xendit request failed: %w", err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(&GatewayError{
			StatusCode: resp.StatusCode,
			Message:    gatewayMessage(body),
			Body:       string(body),
		})
	}

	inv, err := decodeInvoice(body)
	if err != nil {
		return nil, apperr.Upstream(fmt.Errorf("xendit returned an unreadable invoice: %w", err))
	}
	return inv, nil
}

// gatewayMessage extracts "message" or "error.message" from an error body
// and falls back to the raw text.
func gatewayMessage(body []byte) string {
	var decoded struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		if m := strings.TrimSpace(decoded.Message); m != "" {
			return m
		}
		if m := strings.TrimSpace(decoded.Error.Message); m != "" {
			return m
		}
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return raw
	}
	return "Invalid input data. Please check your request"
}

func decodeInvoice(body []byte) (*Invoice, error) {
	var wire struct {
		ID         string          `json:"id"`
		ExternalID string          `json:"external_id"`
		Status     string          `json:"status"`
		Amount     decimal.Decimal `json:"amount"`
		Currency   string          `json:"currency"`
		InvoiceURL string          `json:"invoice_url"`
		PaidAt     string          `json:"paid_at"`
		ExpiryDate string          `json:"expiry_date"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	return &Invoice{
		ID:         wire.ID,
		ExternalID: wire.ExternalID,
		Status:     wire.Status,
		Amount:     wire.Amount,
		Currency:   wire.Currency,
		InvoiceURL: wire.InvoiceURL,
		PaidAt:     parseGatewayTime(wire.PaidAt),
		ExpiryDate: parseGatewayTime(wire.ExpiryDate),
		Raw:        append(json.RawMessage(nil), body...),
	}, nil
}

func parseGatewayTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
