package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
)

// registrationRepository works on untyped rows; the variant tables have no
// GORM models, their shape lives in the schema descriptors.
type registrationRepository struct {
	db *gorm.DB
}

func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) List(ctx context.Context, d *schema.Descriptor, q ListQuery) ([]projector.Row, error) {
	columns := q.Columns
	if len(columns) == 0 {
		columns = d.Columns()
	}
	tx := r.matching(ctx, d, q).Select(columns)
	if d.Has("created_at") {
		tx = tx.Order(d.Column("created_at") + " DESC")
	}
	tx = tx.Order("id DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", d.Table, err)
	}
	return toRows(rows), nil
}

func (r *registrationRepository) Count(ctx context.Context, d *schema.Descriptor, q ListQuery) (int64, error) {
	var n int64
	if err := r.matching(ctx, d, q).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", d.Table, err)
	}
	return n, nil
}

func (r *registrationRepository) matching(ctx context.Context, d *schema.Descriptor, q ListQuery) *gorm.DB {
	tx := r.db.WithContext(ctx).Table(d.Table)
	term := strings.ToLower(strings.TrimSpace(q.Term))
	if term == "" || len(q.Search) == 0 {
		return tx
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"
	conds := make([]string, len(q.Search))
	args := make([]any, len(q.Search))
	for i, col := range q.Search {
		conds[i] = fmt.Sprintf("LOWER(%s) LIKE ?", col)
		args[i] = pattern
	}
	return tx.Where("("+strings.Join(conds, " OR ")+")", args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *registrationRepository) GetByID(ctx context.Context, d *schema.Descriptor, id uint64) (projector.Row, error) {
	var rows []map[string]any
	err := r.db.WithContext(ctx).Table(d.Table).Select(d.Columns()).Where("id = ?", id).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("get %s #%d: %w", d.Table, id, err)
	}
	if len(rows) == 0 {
		return nil, ErrRegistrationNotFound
	}
	return projector.Row(rows[0]), nil
}

func (r *registrationRepository) FindByIdentity(ctx context.Context, d *schema.Descriptor, identity string) ([]projector.Row, error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	q := r.db.WithContext(ctx).Table(d.Table).Select(d.Columns()).
		Where(fmt.Sprintf("LOWER(%s) = ?", d.Column("alamat_email")), identity)
	if d.Has("username") {
		q = q.Or(fmt.Sprintf("LOWER(%s) = ?", d.Column("username")), identity)
	}

	var rows []map[string]any
	if err := q.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find %s by identity: %w", d.Table, err)
	}
	return toRows(rows), nil
}

func (r *registrationRepository) Exists(ctx context.Context, d *schema.Descriptor, column, value string, excludeID uint64) (bool, error) {
	q := r.db.WithContext(ctx).Table(d.Table).
		Where(fmt.Sprintf("LOWER(%s) = ?", column), strings.ToLower(strings.TrimSpace(value)))
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *registrationRepository) Create(ctx context.Context, d *schema.Descriptor, values map[string]any) (uint64, error) {
	var id uint64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(d.Table).Create(values).Error; err != nil {
			return err
		}
		// map inserts do not backfill the primary key
		return tx.Raw("SELECT LAST_INSERT_ID()").Scan(&id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrDuplicateRegistration
		}
		return 0, fmt.Errorf("insert %s: %w", d.Table, err)
	}
	return id, nil
}

func (r *registrationRepository) Update(ctx context.Context, d *schema.Descriptor, id uint64, values map[string]any) error {
	if len(values) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Table(d.Table).Where("id = ?", id).Updates(values).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRegistration
	}
	return err
}

func (r *registrationRepository) Delete(ctx context.Context, d *schema.Descriptor, id uint64) error {
	res := r.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM `%s` WHERE id = ?", d.Table), id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

func (r *registrationRepository) CountByPaymentStatus(ctx context.Context, d *schema.Descriptor) (map[string]int64, error) {
	col := d.Column("status_pembayaran")
	var rows []struct {
		Status *string
		Total  int64
	}
	err := r.db.WithContext(ctx).Table(d.Table).
		Select(fmt.Sprintf("%s AS status, COUNT(*) AS total", col)).
		Group(col).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		status := ""
		if row.Status != nil {
			status = strings.ToLower(strings.TrimSpace(*row.Status))
		}
		out[status] += row.Total
	}
	return out, nil
}

func toRows(in []map[string]any) []projector.Row {
	out := make([]projector.Row, len(in))
	for i, m := range in {
		out[i] = projector.Row(m)
	}
	return out
}
