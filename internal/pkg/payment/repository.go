package payment

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pmbdev/intake/app/models"
)

// Repository provides DB operations used by the payment service.
type Repository interface {
	Create(ctx context.Context, p *models.PmbPayment) error
	FindByExternalID(ctx context.Context, externalID string) (*models.PmbPayment, error)
	FindByInvoiceID(ctx context.Context, invoiceID string) (*models.PmbPayment, error)
	// Apply runs fn against the current row under a row lock and persists the
	// result when fn reports a change.
	Apply(ctx context.Context, externalID string, fn func(current models.PmbPayment) (models.PmbPayment, bool)) (*models.PmbPayment, bool, error)
	CreateCallbackEventIfNotExists(ctx context.Context, event *models.PmbPaymentCallbackEvent) (bool, *models.PmbPaymentCallbackEvent, error)
	MarkCallbackProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, p *models.PmbPayment) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateExternalID
	}
	return err
}

func (r *gormRepository) FindByExternalID(ctx context.Context, externalID string) (*models.PmbPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("external_id = ?", externalID))
}

func (r *gormRepository) FindByInvoiceID(ctx context.Context, invoiceID string) (*models.PmbPayment, error) {
	return r.first(r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID))
}

func (r *gormRepository) first(q *gorm.DB) (*models.PmbPayment, error) {
	var p models.PmbPayment
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) Apply(ctx context.Context, externalID string, fn func(models.PmbPayment) (models.PmbPayment, bool)) (*models.PmbPayment, bool, error) {
	var (
		result  models.PmbPayment
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.PmbPayment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_id = ?", externalID).
			First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvoiceNotFound
			}
			return err
		}

		next, ok := fn(current)
		result, changed = next, ok
		if !ok {
			return nil
		}
		return tx.Model(&models.PmbPayment{}).Where("id = ?", current.ID).Updates(map[string]interface{}{
			"status":           next.Status,
			"paid_at":          next.PaidAt,
			"paid_at_reported": next.PaidAtReported,
			"invoice_id":       next.InvoiceID,
			"invoice_url":      next.InvoiceURL,
			"expiry_date":      next.ExpiryDate,
			"raw_payload":      next.RawPayload,
			"updated_at":       time.Now(),
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &result, changed, nil
}

func (r *gormRepository) CreateCallbackEventIfNotExists(ctx context.Context, event *models.PmbPaymentCallbackEvent) (bool, *models.PmbPaymentCallbackEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payload_hash"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PmbPaymentCallbackEvent
	if err := r.db.WithContext(ctx).Where("payload_hash = ?", event.PayloadHash).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkCallbackProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PmbPaymentCallbackEvent{}).Where("id = ?", id).Updates(updates).Error
}
