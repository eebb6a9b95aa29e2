package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/env"
	"github.com/pmbdev/intake/internal/pkg/metrics"
	"github.com/pmbdev/intake/internal/pkg/phone"
)

const messageFormat = "Kode OTP PMB Anda: %s\nBerlaku %d detik. Jangan bagikan kode ini."

// Sender delivers the code to the applicant.
type Sender interface {
	Send(ctx context.Context, destination, message string) error
}

type Config struct {
	TTL         time.Duration
	MaxAttempts int
	CountryCode string
}

func LoadConfig() Config {
	return Config{
		TTL:         env.GetEnvSeconds("OTP_TTL_SECONDS", 300*time.Second),
		MaxAttempts: env.GetEnvInt("OTP_MAX_ATTEMPTS", 5),
		CountryCode: env.GetEnv("WA_COUNTRY_CODE", phone.DefaultCountryCode),
	}
}

// Issued is returned to the caller of Issue. Code is only meant for dev echoes.
type Issued struct {
	Key       string
	Code      string
	ExpiresAt time.Time
	TTL       time.Duration
}

// Manager owns the challenge lifecycle: Issued -> Verified | Exhausted | Expired.
type Manager struct {
	store  Store
	sender Sender
	cfg    Config
	now    func() time.Time
}

func NewManager(store Store, sender Sender, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = phone.DefaultCountryCode
	}
	return &Manager{store: store, sender: sender, cfg: cfg, now: time.Now}
}

// WithClock replaces the manager clock, used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) Config() Config {
	return m.cfg
}

// NormalizeKey maps a raw phone number to the challenge key.
func (m *Manager) NormalizeKey(raw string) (string, error) {
	key := phone.Normalize(raw, m.cfg.CountryCode)
	if key == "" {
		return "", apperr.Validation("Nomor HP wajib diisi")
	}
	return key, nil
}

// Issue replaces any challenge for key with a fresh one and delivers the code.
func (m *Manager) Issue(ctx context.Context, rawKey string) (*Issued, error) {
	key, err := m.NormalizeKey(rawKey)
	if err != nil {
		return nil, err
	}
	code, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	now := m.now()
	fresh := &Challenge{
		Key:        key,
		CodeHash:   HashCode(code),
		IssuedAt:   now,
		TTLSeconds: int(m.cfg.TTL / time.Second),
		ExpiresAt:  now.Add(m.cfg.TTL),
	}
	if err := m.store.Mutate(ctx, key, func(*Challenge) (*Challenge, error) {
		return fresh, nil
	}); err != nil {
		return nil, fmt.Errorf("store otp challenge: %w", err)
	}

	msg := fmt.Sprintf(messageFormat, code, fresh.TTLSeconds)
	if err := m.sender.Send(ctx, key, msg); err != nil {
		metrics.OTPIssued.WithLabelValues("delivery_failed").Inc()
		log.Errorf("[OTP] Delivery to %s failed: %v", phone.Mask(key), err)
		// Withdraw the code nobody received, unless a newer issue already replaced it.
		if werr := m.store.Mutate(ctx, key, func(cur *Challenge) (*Challenge, error) {
			if cur != nil && cur.CodeHash == fresh.CodeHash {
				return nil, nil
			}
			return cur, nil
		}); werr != nil {
			log.Warnf("[OTP] Failed to withdraw undelivered code for %s: %v", phone.Mask(key), werr)
		}
		return nil, apperr.Upstream(err)
	}

	metrics.OTPIssued.WithLabelValues("sent").Inc()
	log.Infof("[OTP] Issued challenge for %s (ttl=%ds)", phone.Mask(key), fresh.TTLSeconds)
	return &Issued{Key: key, Code: code, ExpiresAt: fresh.ExpiresAt, TTL: m.cfg.TTL}, nil
}

// Verify checks code against the active challenge for key.
func (m *Manager) Verify(ctx context.Context, rawKey, code string) (*Challenge, error) {
	key, err := m.NormalizeKey(rawKey)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.Validation("Kode OTP wajib diisi")
	}

	var verified *Challenge
	err = m.store.Mutate(ctx, key, func(cur *Challenge) (*Challenge, error) {
		now := m.now()
		if cur == nil || cur.Expired(now) {
			return nil, ErrNotFound
		}
		if cur.Attempts >= m.cfg.MaxAttempts {
			return nil, ErrExhausted
		}
		if !CodeEqual(code, cur.CodeHash) {
			cur.Attempts++
			return cur, ErrCodeMismatch
		}
		if !cur.Verified {
			cur.Verified = true
			cur.VerifiedAt = &now
		}
		verified = cur.clone()
		return cur, nil
	})

	switch {
	case err == nil:
		metrics.ObserveOTPVerification("verified")
		log.Infof("[OTP] Verified %s", phone.Mask(key))
		return verified, nil
	case errors.Is(err, ErrNotFound):
		metrics.ObserveOTPVerification("not_found")
		return nil, apperr.Wrap(err, apperr.CodeNotFound, "OTP tidak ditemukan atau sudah kedaluwarsa")
	case errors.Is(err, ErrExhausted):
		metrics.ObserveOTPVerification("exhausted")
		log.Warnf("[OTP] Attempts exhausted for %s", phone.Mask(key))
		return nil, apperr.Wrap(err, apperr.CodeConflict, "Percobaan OTP melebihi batas, silakan minta kode baru")
	case errors.Is(err, ErrCodeMismatch):
		metrics.ObserveOTPVerification("mismatch")
		return nil, apperr.Wrap(err, apperr.CodeValidation, "Kode OTP salah")
	default:
		return nil, fmt.Errorf("verify otp: %w", err)
	}
}

// Status returns the live challenge for key, or a NotFound error.
func (m *Manager) Status(ctx context.Context, rawKey string) (*Challenge, error) {
	key, err := m.NormalizeKey(rawKey)
	if err != nil {
		return nil, err
	}
	ch, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.Expired(m.now()) {
		return nil, apperr.Wrap(ErrNotFound, apperr.CodeNotFound, "OTP tidak ditemukan atau sudah kedaluwarsa")
	}
	return ch, nil
}

// IsVerified reports whether key holds a live, verified challenge.
func (m *Manager) IsVerified(ctx context.Context, rawKey string) (bool, error) {
	ch, err := m.Status(ctx, rawKey)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return ch.Verified, nil
}
