package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pmbdev/intake/internal/pkg/payment"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
)

var (
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrDuplicateRegistration = errors.New("duplicate registration")
)

// ListQuery narrows a variant listing. Term is matched case-insensitively as
// a substring of any Search column. Limit 0 reads every matching row.
type ListQuery struct {
	Columns []string
	Search  []string
	Term    string
	Limit   int
}

// RegistrationRepository reads and writes registration rows of every
// variant. Table and column names always come from the descriptor.
type RegistrationRepository interface {
	// List returns matching rows newest first (created_at, then id).
	List(ctx context.Context, d *schema.Descriptor, q ListQuery) ([]projector.Row, error)
	Count(ctx context.Context, d *schema.Descriptor, q ListQuery) (int64, error)
	GetByID(ctx context.Context, d *schema.Descriptor, id uint64) (projector.Row, error)
	// FindByIdentity matches email, and username where the table has one,
	// case-insensitively.
	FindByIdentity(ctx context.Context, d *schema.Descriptor, identity string) ([]projector.Row, error)
	// Exists reports whether another row holds value in column. excludeID
	// skips the row being edited; 0 checks every row.
	Exists(ctx context.Context, d *schema.Descriptor, column, value string, excludeID uint64) (bool, error)
	Create(ctx context.Context, d *schema.Descriptor, values map[string]any) (uint64, error)
	Update(ctx context.Context, d *schema.Descriptor, id uint64, values map[string]any) error
	Delete(ctx context.Context, d *schema.Descriptor, id uint64) error
	CountByPaymentStatus(ctx context.Context, d *schema.Descriptor) (map[string]int64, error)
}

// Repositories bundles the repositories used by the HTTP layer.
type Repositories struct {
	Registration RegistrationRepository
	Payment      payment.Repository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Registration: NewRegistrationRepository(db),
		Payment:      payment.NewRepository(db),
	}
}
