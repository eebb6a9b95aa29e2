package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	PaymentStatusPending = "PENDING"
	PaymentStatusExpired = "EXPIRED"
	PaymentStatusPaid    = "PAID"
	PaymentStatusSettled = "SETTLED"
)

const (
	PaymentMethodBank    = "bank"
	PaymentMethodEwallet = "ewallet"
)

// PmbPayment is one registration-fee invoice at the payment gateway. Rows
// are never deleted; status only moves forward.
type PmbPayment struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ExternalID     string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"external_id"`
	InvoiceID      *string         `gorm:"type:varchar(64);index" json:"invoice_id"`
	InvoiceURL     string          `gorm:"type:text" json:"invoice_url"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(8);not null;default:'IDR'" json:"currency"`
	Method         string          `gorm:"type:varchar(32)" json:"method"`
	Variant        string          `gorm:"type:varchar(16);not null;default:'mandiri';index" json:"variant"`
	Status         string          `gorm:"type:varchar(32);not null;default:'PENDING';index" json:"status"`
	PaidAt         *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at"`
	PaidAtReported bool            `gorm:"not null;default:false" json:"-"`
	ExpiryDate     *time.Time      `gorm:"type:timestamp;default:null" json:"expiry_date"`
	PayerName      string          `gorm:"type:varchar(255)" json:"payer_name"`
	PayerEmail     string          `gorm:"type:varchar(255)" json:"payer_email"`
	Phone          string          `gorm:"type:varchar(32)" json:"phone"`
	InvoicePayload datatypes.JSON  `gorm:"type:json" json:"-"`
	RawPayload     datatypes.JSON  `gorm:"type:json" json:"-"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PmbPayment) TableName() string { return "pmb_payments" }

// IsPaid reports whether the invoice reached a paid-like status.
func (p *PmbPayment) IsPaid() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusSettled
}
