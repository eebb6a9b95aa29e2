package payment

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/metrics"
	"github.com/pmbdev/intake/internal/pkg/phone"
)

const maxExternalIDAttempts = 3

// Gateway is the invoicing API.
type Gateway interface {
	CreateInvoice(ctx context.Context, p CreateInvoiceParams) (*Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (r *InvoiceRequest) Validate() error {
	return apperr.FromValidator(validate.Struct(r))
}

// Service creates invoices and reconciles their status from the push
// callback and the poll path through one merge.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config
	now     func() time.Time
	newID   func(variant string) (string, error)
}

func NewService(repo Repository, gateway Gateway, cfg Config) *Service {
	return &Service{repo: repo, gateway: gateway, cfg: cfg, now: time.Now, newID: NewExternalID}
}

// NewServiceFromDB wires the GORM repository and the Xendit client from env.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewXenditClientFromEnv(), LoadConfig())
}

// WithClock replaces the time source used for synthesized paid_at values.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CreateInvoice(ctx context.Context, req InvoiceRequest) (*models.PmbPayment, error) {
	req.Variant = strings.ToLower(strings.TrimSpace(req.Variant))
	if req.Variant == "" {
		req.Variant = "mandiri"
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))
	req.Name = strings.TrimSpace(req.Name)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.cfg.Amount.IsPositive() {
		return nil, apperr.New(apperr.CodeInternal, "invoice amount is not configured")
	}

	payerEmail := strings.TrimSpace(req.PayerEmail)
	if payerEmail == "" {
		payerEmail = strings.TrimSpace(req.Email)
	}
	mobile := phone.Normalize(req.Phone, s.cfg.CountryCode)
	if mobile == "" {
		return nil, apperr.Validation("Nomor HP tidak valid")
	}

	externalID, err := s.unusedExternalID(ctx, req.Variant)
	if err != nil {
		return nil, err
	}

	params := CreateInvoiceParams{
		ExternalID:  externalID,
		Amount:      s.cfg.Amount,
		Currency:    s.cfg.Currency,
		Description: fmt.Sprintf("PMB Jalur %s - Biaya Formulir", variantTitle(req.Variant)),
		PayerEmail:  payerEmail,
		Customer: Customer{
			GivenNames:   req.Name,
			Email:        payerEmail,
			MobileNumber: "+" + mobile,
		},
		SuccessRedirectURL: s.cfg.SuccessRedirectURL,
		FailureRedirectURL: s.cfg.FailureRedirectURL,
	}
	if s.cfg.ExpiryMinutes > 0 {
		params.InvoiceDuration = s.cfg.ExpiryMinutes * 60
	}

	inv, err := s.gateway.CreateInvoice(ctx, params)
	if err != nil {
		log.Errorf("[Payment] Invoice creation failed for %s: %v", externalID, err)
		return nil, err
	}

	p := &models.PmbPayment{
		ExternalID:     externalID,
		InvoiceURL:     inv.InvoiceURL,
		Amount:         s.cfg.Amount,
		Currency:       firstNonEmpty(inv.Currency, s.cfg.Currency),
		Method:         req.Method,
		Variant:        req.Variant,
		Status:         firstNonEmpty(NormalizeStatus(inv.Status), models.PaymentStatusPending),
		ExpiryDate:     inv.ExpiryDate,
		PayerName:      req.Name,
		PayerEmail:     payerEmail,
		Phone:          mobile,
		InvoicePayload: append([]byte(nil), inv.Raw...),
	}
	if inv.ID != "" {
		id := inv.ID
		p.InvoiceID = &id
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateExternalID) {
			// The gateway invoice exists but is never stored; it expires unpaid.
			log.Errorf("[Payment] External id %s was taken concurrently, gateway invoice %s abandoned", externalID, inv.ID)
			return nil, apperr.Conflict("Gagal membuat nomor tagihan unik, silakan coba lagi")
		}
		return nil, err
	}

	metrics.InvoicesCreated.Inc()
	log.Infof("[Payment] Invoice %s created (%s %s)", p.ExternalID, p.Amount.String(), p.Currency)
	return p, nil
}

// unusedExternalID draws ids until one is not stored yet. It must run before
// the gateway call: callbacks are matched to stored invoices by external id.
func (s *Service) unusedExternalID(ctx context.Context, variant string) (string, error) {
	for attempt := 1; attempt <= maxExternalIDAttempts; attempt++ {
		id, err := s.newID(variant)
		if err != nil {
			return "", err
		}
		_, err = s.repo.FindByExternalID(ctx, id)
		if errors.Is(err, ErrInvoiceNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		log.Warnf("[Payment] External id collision on %s, drawing again (%d/%d)", id, attempt, maxExternalIDAttempts)
	}
	return "", apperr.Conflict("Gagal membuat nomor tagihan unik, silakan coba lagi")
}

// Get returns the stored invoice without contacting the gateway.
func (s *Service) Get(ctx context.Context, externalID string) (*models.PmbPayment, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, apperr.Validation("external_id wajib diisi")
	}
	p, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Reconcile merges u into the stored invoice under the repository's row lock.
func (s *Service) Reconcile(ctx context.Context, externalID string, u Update, source string) (*models.PmbPayment, error) {
	var before string
	p, changed, err := s.repo.Apply(ctx, externalID, func(current models.PmbPayment) (models.PmbPayment, bool) {
		before = current.Status
		return Merge(current, u, s.now())
	})
	if err != nil {
		return nil, notFound(err)
	}
	metrics.ObserveReconcile(source, changed)
	if before != p.Status {
		log.Infof("[Payment] %s %s -> %s via %s", p.ExternalID, before, p.Status, source)
	}
	return p, nil
}

// Refresh polls the gateway for the invoice and reconciles the answer.
func (s *Service) Refresh(ctx context.Context, externalID string) (*models.PmbPayment, error) {
	p, err := s.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if p.InvoiceID == nil || *p.InvoiceID == "" {
		return p, nil
	}

	inv, err := s.gateway.GetInvoice(ctx, *p.InvoiceID)
	if err != nil {
		log.Warnf("[Payment] Poll for %s failed: %v", p.ExternalID, err)
		return nil, err
	}
	return s.Reconcile(ctx, p.ExternalID, inv.Update(), SourcePoll)
}

// VerifyCallbackToken compares the callback header with the configured
// token in constant time. An unset token rejects everything.
func (s *Service) VerifyCallbackToken(token string) bool {
	expected := s.cfg.CallbackToken
	if expected == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// HandleCallback authenticates and applies one push notification.
func (s *Service) HandleCallback(ctx context.Context, token string, body []byte) (*models.PmbPayment, error) {
	if !s.VerifyCallbackToken(strings.TrimSpace(token)) {
		return nil, apperr.Wrap(ErrInvalidCallback, apperr.CodeUnauthorized, "Invalid callback token.")
	}

	var payload CallbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeValidation, "Payload callback tidak valid")
	}
	if strings.TrimSpace(payload.ExternalID) == "" && strings.TrimSpace(payload.ID) == "" {
		return nil, apperr.Validation("external_id atau id wajib ada")
	}

	sum := sha256.Sum256(body)
	created, event, err := s.repo.CreateCallbackEventIfNotExists(ctx, &models.PmbPaymentCallbackEvent{
		PayloadHash: "sha256:" + hex.EncodeToString(sum[:]),
		ExternalID:  strings.TrimSpace(payload.ExternalID),
		InvoiceID:   strings.TrimSpace(payload.ID),
		Status:      strings.ToUpper(strings.TrimSpace(payload.Status)),
		Payload:     append([]byte(nil), body...),
	})
	if err != nil {
		return nil, err
	}

	p, err := s.locate(ctx, payload)
	if err != nil {
		s.markProcessed(ctx, event, err)
		return nil, err
	}
	if !created && event.ProcessedAt != nil && event.ProcessingError == "" {
		log.Debugf("[Payment] Duplicate callback for %s ignored", p.ExternalID)
		return p, nil
	}

	p, err = s.Reconcile(ctx, p.ExternalID, Update{
		Status:     payload.Status,
		PaidAt:     parseGatewayTime(payload.PaidAt),
		ExpiryDate: parseGatewayTime(payload.ExpiryDate),
		InvoiceURL: payload.InvoiceURL,
		InvoiceID:  payload.ID,
		Raw:        append(json.RawMessage(nil), body...),
	}, SourceCallback)
	s.markProcessed(ctx, event, err)
	return p, err
}

func (s *Service) locate(ctx context.Context, payload CallbackPayload) (*models.PmbPayment, error) {
	if id := strings.TrimSpace(payload.ExternalID); id != "" {
		p, err := s.repo.FindByExternalID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrInvoiceNotFound) {
			return nil, err
		}
	}
	if id := strings.TrimSpace(payload.ID); id != "" {
		p, err := s.repo.FindByInvoiceID(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrInvoiceNotFound) {
			return nil, err
		}
	}
	return nil, apperr.Wrap(ErrInvoiceNotFound, apperr.CodeNotFound, "Payment record not found.")
}

func (s *Service) markProcessed(ctx context.Context, event *models.PmbPaymentCallbackEvent, processingErr error) {
	if event == nil || event.ID == 0 {
		return
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repo.MarkCallbackProcessed(ctx, event.ID, msg); err != nil {
		log.Warnf("[Payment] Failed to mark callback %d processed: %v", event.ID, err)
	}
}

// IsPaid reports whether externalID names a paid-like invoice of variant.
func (s *Service) IsPaid(ctx context.Context, externalID, variant string) (*models.PmbPayment, error) {
	p, err := s.Get(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if variant != "" && !strings.EqualFold(p.Variant, variant) {
		return nil, apperr.Validation("Tagihan tidak sesuai dengan jalur pendaftaran")
	}
	if !p.IsPaid() {
		return nil, apperr.Validation("Pembayaran belum lunas")
	}
	return p, nil
}

func notFound(err error) error {
	if errors.Is(err, ErrInvoiceNotFound) {
		return apperr.Wrap(err, apperr.CodeNotFound, "Payment tidak ditemukan.")
	}
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func variantTitle(v string) string {
	if v == "" {
		return v
	}
	return strings.ToUpper(v[:1]) + v[1:]
}
