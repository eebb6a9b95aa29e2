package payment

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvoiceNotFound     = errors.New("payment invoice not found")
	ErrDuplicateExternalID = errors.New("duplicate external id")
	ErrInvalidCallback     = errors.New("invalid callback token")
)

const (
	SourceCallback = "callback"
	SourcePoll     = "poll"
	SourceCreate   = "create"
)

// Update is one observation of an invoice from either ingress.
type Update struct {
	Status     string
	PaidAt     *time.Time
	ExpiryDate *time.Time
	InvoiceURL string
	InvoiceID  string
	Raw        json.RawMessage
}

// InvoiceRequest is the applicant-facing input of CreateInvoice.
type InvoiceRequest struct {
	Variant    string `json:"jalur" validate:"omitempty,oneof=mandiri kip yayasan"`
	Method     string `json:"method" validate:"required,oneof=bank ewallet"`
	Name       string `json:"name" validate:"required,max=255"`
	Phone      string `json:"phone" validate:"required,max=30"`
	Email      string `json:"email" validate:"omitempty,email,max=255"`
	PayerEmail string `json:"payer_email" validate:"omitempty,email,max=255"`
}

// Invoice is the gateway's view of an invoice.
type Invoice struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	InvoiceURL string          `json:"invoice_url"`
	PaidAt     *time.Time      `json:"paid_at"`
	ExpiryDate *time.Time      `json:"expiry_date"`
	Raw        json.RawMessage `json:"-"`
}

// Update converts the gateway view into a reconcile observation.
func (i *Invoice) Update() Update {
	return Update{
		Status:     i.Status,
		PaidAt:     i.PaidAt,
		ExpiryDate: i.ExpiryDate,
		InvoiceURL: i.InvoiceURL,
		InvoiceID:  i.ID,
		Raw:        i.Raw,
	}
}

// CallbackPayload is the invoice callback body sent by the gateway.
type CallbackPayload struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	PaidAt     string `json:"paid_at"`
	ExpiryDate string `json:"expiry_date"`
	InvoiceURL string `json:"invoice_url"`
}

// Customer mirrors the gateway customer object.
type Customer struct {
	GivenNames   string `json:"given_names"`
	Email        string `json:"email,omitempty"`
	MobileNumber string `json:"mobile_number,omitempty"`
}

// CreateInvoiceParams is the gateway create-invoice body.
type CreateInvoiceParams struct {
	ExternalID         string          `json:"external_id"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Description        string          `json:"description"`
	PayerEmail         string          `json:"payer_email,omitempty"`
	Customer           Customer        `json:"customer"`
	InvoiceDuration    int             `json:"invoice_duration,omitempty"`
	SuccessRedirectURL string          `json:"success_redirect_url,omitempty"`
	FailureRedirectURL string          `json:"failure_redirect_url,omitempty"`
}
