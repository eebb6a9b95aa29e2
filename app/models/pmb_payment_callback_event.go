package models

import (
	"time"

	"gorm.io/datatypes"
)

// PmbPaymentCallbackEvent is the audit trail of authenticated gateway
// callbacks, de-duplicated by payload hash.
type PmbPaymentCallbackEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PayloadHash     string         `gorm:"type:varchar(80);not null;uniqueIndex" json:"payload_hash"`
	ExternalID      string         `gorm:"type:varchar(64);not null;default:'';index" json:"external_id"`
	InvoiceID       string         `gorm:"type:varchar(64);not null;default:''" json:"invoice_id"`
	Status          string         `gorm:"type:varchar(32);not null;default:''" json:"status"`
	Payload         datatypes.JSON `gorm:"type:json" json:"payload"`
	ProcessedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PmbPaymentCallbackEvent) TableName() string { return "pmb_payment_callback_events" }
