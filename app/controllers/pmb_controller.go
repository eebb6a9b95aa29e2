package controllers

import (
	"context"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/internal/pkg/otp"
	"github.com/pmbdev/intake/internal/pkg/payment"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/registration"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

// OTPService issues and verifies phone challenges.
type OTPService interface {
	Issue(ctx context.Context, rawKey string) (*otp.Issued, error)
	Verify(ctx context.Context, rawKey, code string) (*otp.Challenge, error)
}

// PaymentService is the invoice surface used by the HTTP layer.
type PaymentService interface {
	CreateInvoice(ctx context.Context, req payment.InvoiceRequest) (*models.PmbPayment, error)
	Get(ctx context.Context, externalID string) (*models.PmbPayment, error)
	Refresh(ctx context.Context, externalID string) (*models.PmbPayment, error)
	HandleCallback(ctx context.Context, token string, body []byte) (*models.PmbPayment, error)
}

// Registrar runs the write side of one registration variant.
type Registrar interface {
	Register(ctx context.Context, v schema.Variant, sub registration.Submission) (*projector.View, error)
	Show(ctx context.Context, v schema.Variant, id uint64) (*projector.View, error)
	Update(ctx context.Context, v schema.Variant, id uint64, ch registration.Change) (*projector.View, error)
	Delete(ctx context.Context, v schema.Variant, id uint64) error
}

// Directory reads all variants as one collection.
type Directory interface {
	ListAll(ctx context.Context, f registration.Filter, p registration.Page) (*registration.Listing, error)
	FindByIdentity(ctx context.Context, identity string) (map[schema.Variant][]projector.View, error)
	Summary(ctx context.Context) (*registration.Summary, error)
}

// HealthChecker probes the artifact backend.
type HealthChecker interface {
	CheckHealth(ctx context.Context) storage.Health
}

// PmbServices bundles everything the PMB controllers depend on.
type PmbServices struct {
	OTP          OTPService
	Payments     PaymentService
	Registration Registrar
	Directory    Directory
	Artifacts    HealthChecker
	// EchoOTP returns the issued code in the send response. Dev only.
	EchoOTP bool
}

// PmbController serves the applicant and admin endpoints of the intake.
type PmbController struct {
	svc PmbServices
}

func NewPmbController(svc PmbServices) *PmbController {
	return &PmbController{svc: svc}
}
