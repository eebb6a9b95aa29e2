package registration

import (
	"bytes"
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/app/repository"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/phone"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n%%EOF\n")
)

type memoryRepo struct {
	mu        sync.Mutex
	tables    map[string][]projector.Row
	nextID    map[string]uint64
	createErr error
	listCalls int
	limits    []int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tables: map[string][]projector.Row{}, nextID: map[string]uint64{}}
}

var _ repository.RegistrationRepository = (*memoryRepo)(nil)

func copyRow(r projector.Row, columns []string) projector.Row {
	out := projector.Row{}
	if columns == nil {
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func (m *memoryRepo) seed(d *schema.Descriptor, row projector.Row) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID[d.Table]++
	id := m.nextID[d.Table]
	row = copyRow(row, nil)
	row["id"] = id
	m.tables[d.Table] = append(m.tables[d.Table], row)
	return id
}

func (m *memoryRepo) row(d *schema.Descriptor, id uint64) projector.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[d.Table] {
		if r["id"] == id {
			return copyRow(r, nil)
		}
	}
	return nil
}

func (m *memoryRepo) count(d *schema.Descriptor) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[d.Table])
}

func (m *memoryRepo) matching(d *schema.Descriptor, q repository.ListQuery) []projector.Row {
	term := strings.ToLower(strings.TrimSpace(q.Term))
	var out []projector.Row
	for _, r := range m.tables[d.Table] {
		if term == "" || len(q.Search) == 0 {
			out = append(out, r)
			continue
		}
		for _, col := range q.Search {
			if strings.Contains(strings.ToLower(projector.AsString(r[col])), term) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (m *memoryRepo) List(_ context.Context, d *schema.Descriptor, q repository.ListQuery) ([]projector.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	m.limits = append(m.limits, q.Limit)

	rows := m.matching(d, q)
	created := d.Column("created_at")
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i][created].(time.Time)
		b, _ := rows[j][created].(time.Time)
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i]["id"].(uint64) > rows[j]["id"].(uint64)
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]projector.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, copyRow(r, q.Columns))
	}
	return out, nil
}

func (m *memoryRepo) Count(_ context.Context, d *schema.Descriptor, q repository.ListQuery) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matching(d, q))), nil
}

func (m *memoryRepo) GetByID(_ context.Context, d *schema.Descriptor, id uint64) (projector.Row, error) {
	if r := m.row(d, id); r != nil {
		return r, nil
	}
	return nil, repository.ErrRegistrationNotFound
}

func (m *memoryRepo) FindByIdentity(_ context.Context, d *schema.Descriptor, identity string) ([]projector.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []projector.Row
	for _, r := range m.tables[d.Table] {
		email := strings.ToLower(projector.AsString(r[d.Column("alamat_email")]))
		user := ""
		if d.Has("username") {
			user = strings.ToLower(projector.AsString(r[d.Column("username")]))
		}
		if email == identity || (user != "" && user == identity) {
			out = append(out, copyRow(r, nil))
		}
	}
	return out, nil
}

func (m *memoryRepo) Exists(_ context.Context, d *schema.Descriptor, column, value string, excludeID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[d.Table] {
		if r["id"] == excludeID {
			continue
		}
		if strings.EqualFold(projector.AsString(r[column]), strings.TrimSpace(value)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) Create(_ context.Context, d *schema.Descriptor, values map[string]any) (uint64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	return m.seed(d, projector.Row(values)), nil
}

func (m *memoryRepo) Update(_ context.Context, d *schema.Descriptor, id uint64, values map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.tables[d.Table] {
		if r["id"] == id {
			for k, v := range values {
				r[k] = v
			}
			return nil
		}
	}
	return repository.ErrRegistrationNotFound
}

func (m *memoryRepo) Delete(_ context.Context, d *schema.Descriptor, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[d.Table]
	for i, r := range rows {
		if r["id"] == id {
			m.tables[d.Table] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrRegistrationNotFound
}

func (m *memoryRepo) CountByPaymentStatus(_ context.Context, d *schema.Descriptor) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int64{}
	for _, r := range m.tables[d.Table] {
		out[strings.ToLower(projector.AsString(r[d.Column("status_pembayaran")]))]++
	}
	return out, nil
}

type verifiedPhones map[string]bool

func (v verifiedPhones) IsVerified(_ context.Context, key string) (bool, error) {
	return v[phone.Normalize(key, "62")], nil
}

type paidInvoices map[string]*models.PmbPayment

func (p paidInvoices) IsPaid(_ context.Context, externalID, variant string) (*models.PmbPayment, error) {
	inv, ok := p[externalID]
	if !ok {
		return nil, apperr.NotFound("Payment tidak ditemukan.")
	}
	if !strings.EqualFold(inv.Variant, variant) {
		return nil, apperr.Validation("Tagihan tidak sesuai dengan jalur pendaftaran")
	}
	if !inv.IsPaid() {
		return nil, apperr.Validation("Pembayaran belum lunas")
	}
	return inv, nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	artifacts *storage.Coordinator
	root      string
	phones    verifiedPhones
	invoices  paidInvoices
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	artifacts := storage.NewCoordinator(storage.NewLocalBackend(root, "https://pmb.test/storage")).WithSyncDeletes()
	f := &fixture{
		repo:      newMemoryRepo(),
		artifacts: artifacts,
		root:      root,
		phones:    verifiedPhones{"6281234567890": true},
		invoices: paidInvoices{
			"PMB-MANDIRI-ABC1234567": {ExternalID: "PMB-MANDIRI-ABC1234567", Variant: "mandiri", Method: "bank", Status: models.PaymentStatusPaid},
			"PMB-YAYASAN-ABC1234567": {ExternalID: "PMB-YAYASAN-ABC1234567", Variant: "yayasan", Method: "ewallet", Status: models.PaymentStatusSettled},
			"PMB-MANDIRI-PENDING000": {ExternalID: "PMB-MANDIRI-PENDING000", Variant: "mandiri", Status: models.PaymentStatusPending},
		},
	}
	f.svc = NewService(f.repo, artifacts, f.phones, f.invoices).WithPasswordCost(4)
	return f
}

// files lists every stored file below the storage root.
func (f *fixture) files(t *testing.T) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(f.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !e.IsDir() {
			rel, _ := filepath.Rel(f.root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func pngUpload(name string) storage.Upload {
	return storage.Upload{Filename: name, Size: int64(len(pngBytes)), Content: bytes.NewReader(pngBytes)}
}

func pdfUpload(name string) storage.Upload {
	return storage.Upload{Filename: name, Size: int64(len(pdfBytes)), Content: bytes.NewReader(pdfBytes)}
}
