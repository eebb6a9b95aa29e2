package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/app/repository"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/env"
	"github.com/pmbdev/intake/internal/pkg/phone"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

const (
	StatusPaid    = "paid"
	StatusPending = "pending"

	maxUsernameSuffix = 1000
)

var defaultTrack = map[schema.Variant]string{
	schema.Mandiri: "mandiri",
	schema.Kip:     "KIP",
	schema.Yayasan: "Beasiswa Yayasan",
}

// OTPVerifier reports whether a phone number passed OTP verification.
type OTPVerifier interface {
	IsVerified(ctx context.Context, key string) (bool, error)
}

// PaymentVerifier resolves a paid invoice reference.
type PaymentVerifier interface {
	IsPaid(ctx context.Context, externalID, variant string) (*models.PmbPayment, error)
}

// Service writes registrations of every variant through the schema
// descriptors and keeps their files in step with the rows.
type Service struct {
	repo         repository.RegistrationRepository
	artifacts    *storage.Coordinator
	projector    *projector.Projector
	otp          OTPVerifier
	payments     PaymentVerifier
	countryCode  string
	passwordCost int
	now          func() time.Time
}

func NewService(repo repository.RegistrationRepository, artifacts *storage.Coordinator, otp OTPVerifier, payments PaymentVerifier) *Service {
	return &Service{
		repo:         repo,
		artifacts:    artifacts,
		projector:    projector.New(artifacts),
		otp:          otp,
		payments:     payments,
		countryCode:  env.GetEnv("WA_COUNTRY_CODE", phone.DefaultCountryCode),
		passwordCost: bcrypt.DefaultCost,
		now:          time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPasswordCost sets the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithPasswordCost(cost int) *Service {
	s.passwordCost = cost
	return s
}

func (s *Service) Projector() *projector.Projector {
	return s.projector
}

// Register validates and stores one submission. Nothing is written unless
// every check passes; files stored before a failed insert are removed.
func (s *Service) Register(ctx context.Context, v schema.Variant, sub Submission) (*projector.View, error) {
	d := schema.For(v)
	in := sub.canonical(d)

	problems := checkFields(d, in)
	password := sub.raw("kata_sandi")
	if len(password) < minPasswordLength {
		problems = append(problems, fmt.Sprintf("kata_sandi: min=%d", minPasswordLength))
	}
	if confirm, ok := sub.Fields["konfirmasi_kata_sandi"]; (ok || v == schema.Mandiri) && confirm != password {
		problems = append(problems, "konfirmasi_kata_sandi: same")
	}
	problems = append(problems, checkUploads(d, sub)...)
	if len(problems) > 0 {
		return nil, invalid(problems)
	}

	if p1, p2 := in["program_studi_1"], in["program_studi_2"]; p1 != "" && strings.EqualFold(p1, p2) {
		return nil, apperr.Validation("Program studi pilihan 1 dan 2 tidak boleh sama.")
	}
	switch v {
	case schema.Mandiri:
		if !truthy(in["setuju_syarat"]) || !truthy(in["setuju_kebenaran_data"]) {
			return nil, apperr.Validation("Anda wajib menyetujui syarat & ketentuan serta kebenaran data.")
		}
	case schema.Yayasan:
		if !truthy(in["setuju_biaya_formulir"]) {
			return nil, apperr.Validation("Anda harus menyetujui biaya formulir.")
		}
	}

	verified, err := s.otp.IsVerified(ctx, in["nomor_hp"])
	if err != nil {
		return nil, err
	}
	if !verified {
		return nil, apperr.Validation("OTP belum terverifikasi.")
	}

	var invoice *models.PmbPayment
	if v != schema.Kip {
		externalID := sub.raw("payment_external_id")
		if externalID == "" {
			return nil, apperr.Validation("Status pembayaran belum LUNAS.")
		}
		invoice, err = s.payments.IsPaid(ctx, externalID, string(v))
		if err != nil {
			if apperr.HasCode(err, apperr.CodeNotFound) {
				return nil, &apperr.Error{Code: apperr.CodeValidation, Message: "Tagihan pembayaran tidak ditemukan.", Err: err}
			}
			return nil, err
		}
	}

	taken, err := s.repo.Exists(ctx, d, d.Column("alamat_email"), in["alamat_email"], 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("Email sudah terdaftar.")
	}

	username := ""
	if d.Has("username") {
		if username, err = s.username(ctx, d, in["username"], in["alamat_email"]); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	values := s.baseValues(d, in)
	now := s.now()
	values[d.Column("password_hash")] = string(hash)
	values[d.Column("nomor_hp")] = phone.Normalize(in["nomor_hp"], s.countryCode)
	values[d.Column("otp_terverifikasi")] = true
	values[d.Column("status_pembayaran")] = StatusPaid
	values[d.Column("created_at")] = now
	values[d.Column("updated_at")] = now
	if d.Has("otp_verified_at") {
		values[d.Column("otp_verified_at")] = now
	}
	if username != "" {
		values[d.Column("username")] = username
	}
	if invoice != nil {
		values[d.Column("payment_external_id")] = invoice.ExternalID
		if d.Has("metode_pembayaran") && values[d.Column("metode_pembayaran")] == nil && invoice.Method != "" {
			values[d.Column("metode_pembayaran")] = invoice.Method
		}
	}

	cs := s.artifacts.Begin()
	listed, err := s.storeUploads(ctx, cs, d, sub, fmt.Sprintf("pmb/%s", v), values)
	if err != nil {
		cs.Rollback(context.WithoutCancel(ctx))
		return nil, err
	}
	switch v {
	case schema.Mandiri:
		values[d.Column("berkas_terunggah")] = listed > 0
	default:
		values[d.Column("berkas_terunggah")] = true
	}

	var id uint64
	err = cs.Commit(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.repo.Create(ctx, d, values)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRegistration) {
			return nil, apperr.Wrap(err, apperr.CodeConflict, "Email atau username sudah terdaftar.")
		}
		return nil, err
	}

	log.Infof("[Registration] %s #%d registered (%s)", v, id, phone.Mask(phone.Normalize(in["nomor_hp"], s.countryCode)))
	return s.Show(ctx, v, id)
}

// baseValues turns the submitted text into physical column values.
func (s *Service) baseValues(d *schema.Descriptor, in map[string]string) map[string]any {
	fields := make(map[string]any, len(in))
	for k, val := range in {
		fields[k] = val
	}
	if in["jalur_pendaftaran"] == "" {
		fields["jalur_pendaftaran"] = defaultTrack[d.Variant]
	}
	if d.Has("program_studi") && in["program_studi"] == "" {
		fields["program_studi"] = in["program_studi_1"]
	}
	ws, dropped := projector.ForWrite(d, fields)
	if len(dropped) > 0 {
		log.Debugf("[Registration] %s ignored fields %v", d.Variant, dropped)
	}
	return ws
}

// username keeps a requested username when it is free, otherwise derives
// one from the email local part with a numeric suffix until unique.
func (s *Service) username(ctx context.Context, d *schema.Descriptor, requested, email string) (string, error) {
	col := d.Column("username")
	if requested = strings.ToLower(strings.TrimSpace(requested)); requested != "" {
		taken, err := s.repo.Exists(ctx, d, col, requested, 0)
		if err != nil {
			return "", err
		}
		if taken {
			return "", apperr.Conflict("Username sudah digunakan.")
		}
		return requested, nil
	}

	local, _, _ := strings.Cut(email, "@")
	base := slug.Make(local)
	if base == "" {
		base = string(d.Variant)
	}
	candidate := base
	for i := 1; i <= maxUsernameSuffix; i++ {
		taken, err := s.repo.Exists(ctx, d, col, candidate, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", apperr.Conflict("Gagal membuat username unik.")
}

// storeUploads stores every submitted slot and list file under scope and
// records the resulting columns in values. It returns the number of list
// files stored.
func (s *Service) storeUploads(ctx context.Context, cs *storage.Changeset, d *schema.Descriptor, sub Submission, scope string, values map[string]any) (int, error) {
	for _, slot := range d.Slots() {
		ups := sub.uploads(slot.FormField, slot.Name)
		if len(ups) == 0 {
			continue
		}
		up := ups[0]
		up.Class = slot.Class
		a, err := cs.Store(ctx, scope+"/"+slot.Name, up)
		if err != nil {
			return 0, err
		}
		setSlot(d, slot, values, &a)
	}

	listed := 0
	for _, l := range d.FileLists() {
		ups := sub.uploads(l.FormField, l.Field)
		if len(ups) == 0 {
			continue
		}
		paths := make([]string, 0, len(ups))
		names := make([]string, 0, len(ups))
		for _, up := range ups {
			up.Class = l.Class
			a, err := cs.Store(ctx, scope+"/"+l.FormField, up)
			if err != nil {
				return 0, err
			}
			paths = append(paths, a.Path)
			names = append(names, a.Name)
		}
		encoded, err := storage.MergeAppend(values[d.Column(l.Field)], paths)
		if err != nil {
			return 0, err
		}
		values[d.Column(l.Field)] = encoded
		listed += len(paths)

		if d.Has("file_rapor_nama") && l.Field == "file_rapor_paths" {
			if name := sub.raw("file_rapor_nama"); name != "" {
				values[d.Column("file_rapor_nama")] = name
			} else {
				values[d.Column("file_rapor_nama")] = strings.Join(names, ", ")
			}
		}
	}
	return listed, nil
}

// setSlot writes the columns of one single-file slot. A nil artifact clears them.
func setSlot(d *schema.Descriptor, slot schema.Slot, values map[string]any, a *storage.Artifact) {
	var path, name, url any
	if a != nil {
		path, name, url = a.Path, a.Name, a.URL
	}
	values[d.Column(slot.PathField)] = path
	values[d.Column(slot.NameField)] = name
	if slot.URLField != "" {
		values[d.Column(slot.URLField)] = url
	}
}
