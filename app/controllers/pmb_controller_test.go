package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/otp"
	"github.com/pmbdev/intake/internal/pkg/payment"
	"github.com/pmbdev/intake/internal/pkg/projector"
	"github.com/pmbdev/intake/internal/pkg/registration"
	"github.com/pmbdev/intake/internal/pkg/schema"
	"github.com/pmbdev/intake/internal/pkg/storage"
)

type stubOTP struct {
	issueErr  error
	verifyErr error
	lastPhone string
	lastCode  string
}

func (s *stubOTP) Issue(_ context.Context, raw string) (*otp.Issued, error) {
	s.lastPhone = raw
	if s.issueErr != nil {
		return nil, s.issueErr
	}
	return &otp.Issued{Key: "6281234567890", Code: "123456", TTL: 300 * time.Second}, nil
}

func (s *stubOTP) Verify(_ context.Context, raw, code string) (*otp.Challenge, error) {
	s.lastPhone, s.lastCode = raw, code
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	now := time.Now()
	return &otp.Challenge{Key: "6281234567890", Verified: true, VerifiedAt: &now}, nil
}

type stubPayments struct {
	created   payment.InvoiceRequest
	token     string
	body      []byte
	refreshed string
	err       error
}

func (s *stubPayments) invoice(externalID string) *models.PmbPayment {
	return &models.PmbPayment{ExternalID: externalID, Amount: decimal.NewFromInt(250000), Currency: "IDR", Variant: "mandiri", Status: models.PaymentStatusPaid}
}

func (s *stubPayments) CreateInvoice(_ context.Context, req payment.InvoiceRequest) (*models.PmbPayment, error) {
	s.created = req
	if s.err != nil {
		return nil, s.err
	}
	p := s.invoice("PMB-MANDIRI-ABC1234567")
	p.Status = models.PaymentStatusPending
	return p, nil
}

func (s *stubPayments) Get(_ context.Context, externalID string) (*models.PmbPayment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice(externalID), nil
}

func (s *stubPayments) Refresh(_ context.Context, externalID string) (*models.PmbPayment, error) {
	s.refreshed = externalID
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice(externalID), nil
}

func (s *stubPayments) HandleCallback(_ context.Context, token string, body []byte) (*models.PmbPayment, error) {
	s.token, s.body = token, body
	if s.err != nil {
		return nil, s.err
	}
	return s.invoice("PMB-MANDIRI-ABC1234567"), nil
}

type stubRegistrar struct {
	variant schema.Variant
	id      uint64
	sub     registration.Submission
	change  registration.Change
	content map[string]string
	err     error
}

func (s *stubRegistrar) Register(_ context.Context, v schema.Variant, sub registration.Submission) (*projector.View, error) {
	s.variant, s.sub = v, sub
	s.content = map[string]string{}
	for name, ups := range sub.Files {
		for _, up := range ups {
			b, _ := io.ReadAll(up.Content)
			s.content[name] += string(b)
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &projector.View{Source: v, ID: 1, Name: sub.Fields["nama_lengkap"]}, nil
}

func (s *stubRegistrar) Show(_ context.Context, v schema.Variant, id uint64) (*projector.View, error) {
	s.variant, s.id = v, id
	if s.err != nil {
		return nil, s.err
	}
	return &projector.View{Source: v, ID: id}, nil
}

func (s *stubRegistrar) Update(_ context.Context, v schema.Variant, id uint64, ch registration.Change) (*projector.View, error) {
	s.variant, s.id, s.change = v, id, ch
	if s.err != nil {
		return nil, s.err
	}
	return &projector.View{Source: v, ID: id}, nil
}

func (s *stubRegistrar) Delete(_ context.Context, v schema.Variant, id uint64) error {
	s.variant, s.id = v, id
	return s.err
}

type stubDirectory struct {
	filter   registration.Filter
	page     registration.Page
	identity string
	err      error
}

func (s *stubDirectory) ListAll(_ context.Context, f registration.Filter, p registration.Page) (*registration.Listing, error) {
	s.filter, s.page = f, p
	if s.err != nil {
		return nil, s.err
	}
	return &registration.Listing{Data: []projector.View{{Source: schema.Kip, ID: 3}}, Total: 1, Page: 1, PerPage: 25, LastPage: 1}, nil
}

func (s *stubDirectory) FindByIdentity(_ context.Context, identity string) (map[schema.Variant][]projector.View, error) {
	s.identity = identity
	if s.err != nil {
		return nil, s.err
	}
	return map[schema.Variant][]projector.View{
		schema.Mandiri: {{Source: schema.Mandiri, ID: 1}},
		schema.Kip:     {},
		schema.Yayasan: {{Source: schema.Yayasan, ID: 4}},
	}, nil
}

func (s *stubDirectory) Summary(context.Context) (*registration.Summary, error) {
	return &registration.Summary{Total: registration.Counts{Total: 2, Paid: 1, Pending: 1}}, nil
}

type stubHealth struct{ healthy bool }

func (s stubHealth) CheckHealth(context.Context) storage.Health {
	return storage.Health{Backend: "local", Healthy: s.healthy}
}

type harness struct {
	app  *fiber.App
	otp  *stubOTP
	pay  *stubPayments
	reg  *stubRegistrar
	dir  *stubDirectory
	echo bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{otp: &stubOTP{}, pay: &stubPayments{}, reg: &stubRegistrar{}, dir: &stubDirectory{}}
	pc := NewPmbController(PmbServices{
		OTP:          h.otp,
		Payments:     h.pay,
		Registration: h.reg,
		Directory:    h.dir,
		Artifacts:    stubHealth{healthy: false},
	})
	h.app = fiber.New()
	h.app.Post("/otp/send", pc.HandleOtpSend)
	h.app.Post("/otp/verify", pc.HandleOtpVerify)
	h.app.Post("/invoice", pc.HandlePaymentInvoiceCreate)
	h.app.Get("/payments/:external_id", pc.HandlePaymentShow)
	h.app.Post("/payments/status", pc.HandlePaymentStatus)
	h.app.Post("/webhook", pc.HandleXenditWebhook)
	h.app.Post("/register/:variant", pc.HandleRegister)
	h.app.Get("/admin/registrations", pc.HandleAdminRegistrations)
	h.app.Get("/admin/summary", pc.HandleAdminSummary)
	h.app.Get("/admin/lookup", pc.HandleAdminLookup)
	h.app.Get("/admin/health", pc.HandleAdminStorageHealth)
	h.app.Get("/admin/:variant/:id", pc.HandleAdminRegistrationShow)
	h.app.Patch("/admin/:variant/:id", pc.HandleAdminRegistrationUpdate)
	h.app.Delete("/admin/:variant/:id", pc.HandleAdminRegistrationDelete)
	return h
}

func (h *harness) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	}
	return resp.StatusCode, body
}

func jsonRequest(method, target string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestOtpSend(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, jsonRequest(http.MethodPost, "/otp/send", map[string]string{"phone": "0812-3456-7890"}))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "0812-3456-7890", h.otp.lastPhone)
	assert.Equal(t, "OTP berhasil dikirim ke WhatsApp.", body["message"])
	assert.EqualValues(t, 300, body["ttl_seconds"])
	assert.NotContains(t, body, "debug_otp")
}

func TestOtpSend_EchoesCodeInDev(t *testing.T) {
	h := newHarness(t)
	pc := NewPmbController(PmbServices{OTP: h.otp, EchoOTP: true})
	app := fiber.New()
	app.Post("/otp/send", pc.HandleOtpSend)
	h.app = app

	_, body := h.do(t, jsonRequest(http.MethodPost, "/otp/send", map[string]string{"phone": "081234567890"}))
	assert.Equal(t, "123456", body["debug_otp"])
}

func TestOtpVerify(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, jsonRequest(http.MethodPost, "/otp/verify", map[string]string{"phone": "081234567890", "otp": " 123456 "}))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["otp_terverifikasi"])
	assert.Equal(t, "123456", h.otp.lastCode)

	status, body = h.do(t, jsonRequest(http.MethodPost, "/otp/verify", map[string]string{"phone": "081234567890"}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body["error"])
}

func TestOtpVerify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"mismatch", apperr.Validation("Kode OTP salah"), fiber.StatusUnprocessableEntity, "validation_error"},
		{"missing", apperr.NotFound("OTP tidak ditemukan"), fiber.StatusNotFound, "not_found"},
		{"store", apperr.New(apperr.CodeStorage, "redis down"), fiber.StatusInternalServerError, "storage_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.otp.verifyErr = tt.err
			status, body := h.do(t, jsonRequest(http.MethodPost, "/otp/verify", map[string]string{"phone": "0812", "otp": "1"}))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestPaymentInvoiceCreate(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, jsonRequest(http.MethodPost, "/invoice", map[string]string{
		"jalur": "mandiri", "method": "bank", "name": "Siti", "phone": "081234567890",
	}))

	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "bank", h.pay.created.Method)
	data := body["data"].(map[string]any)
	assert.Equal(t, "PMB-MANDIRI-ABC1234567", data["external_id"])
	assert.Equal(t, false, data["is_paid"])
}

func TestPaymentInvoiceCreate_UpstreamError(t *testing.T) {
	h := newHarness(t)
	h.pay.err = apperr.Upstream(&payment.GatewayError{StatusCode: 400, Message: "amount too low"})
	status, body := h.do(t, jsonRequest(http.MethodPost, "/invoice", map[string]string{"method": "bank"}))

	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "upstream_error", body["error"])
}

func TestPaymentShowAndStatus(t *testing.T) {
	h := newHarness(t)

	status, body := h.do(t, httptest.NewRequest(http.MethodGet, "/payments/PMB-MANDIRI-ABC1234567", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["is_paid"])

	status, _ = h.do(t, jsonRequest(http.MethodPost, "/payments/status", map[string]string{"external_id": " PMB-MANDIRI-ABC1234567 "}))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "PMB-MANDIRI-ABC1234567", h.pay.refreshed)
}

func TestXenditWebhook(t *testing.T) {
	h := newHarness(t)
	payload := `{"external_id":"PMB-MANDIRI-ABC1234567","status":"PAID"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callback-Token", "cb-secret")

	status, body := h.do(t, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "cb-secret", h.pay.token)
	assert.JSONEq(t, payload, string(h.pay.body))
	assert.Equal(t, "PAID", body["status"])
}

func TestXenditWebhook_BadToken(t *testing.T) {
	h := newHarness(t)
	h.pay.err = apperr.Wrap(payment.ErrInvalidCallback, apperr.CodeUnauthorized, "Invalid callback token.")
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{}`))

	status, body := h.do(t, req)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Invalid callback token.", body["message"])
}

func multipartRequest(t *testing.T, method, target string, fields map[string][]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, vs := range fields {
		for _, v := range vs {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for field, content := range files {
		part, err := w.CreateFormFile(field, field+".pdf")
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRegister_Multipart(t *testing.T) {
	h := newHarness(t)
	req := multipartRequest(t, http.MethodPost, "/register/Mandiri",
		map[string][]string{
			"nama_lengkap":        {"Siti"},
			"kategori_prestasi[]": {"sains", "seni"},
		},
		map[string]string{"foto": "photo-bytes", "berkas[]": "doc-bytes"},
	)

	status, body := h.do(t, req)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, schema.Mandiri, h.reg.variant)
	assert.Equal(t, "Siti", h.reg.sub.Fields["nama_lengkap"])
	assert.Equal(t, `["sains","seni"]`, h.reg.sub.Fields["kategori_prestasi"])
	assert.Equal(t, "photo-bytes", h.reg.content["foto"])
	assert.Equal(t, "doc-bytes", h.reg.content["berkas"])
	assert.Equal(t, "foto.pdf", h.reg.sub.Files["foto"][0].Filename)
}

func TestRegister_JSONAndErrors(t *testing.T) {
	h := newHarness(t)
	status, _ := h.do(t, jsonRequest(http.MethodPost, "/register/kip", map[string]any{
		"nama_lengkap": "Budi", "tahun_lulus": 2025, "setuju_syarat": true,
	}))
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "2025", h.reg.sub.Fields["tahun_lulus"])
	assert.Equal(t, "1", h.reg.sub.Fields["setuju_syarat"])

	status, body := h.do(t, jsonRequest(http.MethodPost, "/register/reguler", map[string]any{}))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body["error"])

	h.reg.err = apperr.Conflict("Email sudah terdaftar")
	status, body = h.do(t, jsonRequest(http.MethodPost, "/register/yayasan", map[string]any{}))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Email sudah terdaftar", body["message"])
}

func TestAdminRegistrations(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/registrations?q=siti&source=kip&page=2&per_page=10", nil))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, registration.Filter{Query: "siti", Source: "kip"}, h.dir.filter)
	assert.Equal(t, registration.Page{Page: 2, PerPage: 10}, h.dir.page)
	assert.EqualValues(t, 1, body["total"])
	assert.Len(t, body["data"], 1)
}

func TestAdminLookupAndSummary(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/lookup?identity=Siti@Example.com", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "Siti@Example.com", h.dir.identity)
	assert.EqualValues(t, 2, body["total"])
	assert.Contains(t, body["data"], "kip")

	status, body = h.do(t, httptest.NewRequest(http.MethodGet, "/admin/summary", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["total"].(map[string]any)["total"])
}

func TestAdminShowAndDelete(t *testing.T) {
	h := newHarness(t)
	status, _ := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/yayasan/12", nil))
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, uint64(12), h.reg.id)

	status, body := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/yayasan/abc", nil))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", body["error"])

	h.reg.err = apperr.NotFound("Data pendaftaran tidak ditemukan.")
	status, _ = h.do(t, httptest.NewRequest(http.MethodDelete, "/admin/kip/9", nil))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, schema.Kip, h.reg.variant)
}

func TestAdminUpdate_JSON(t *testing.T) {
	h := newHarness(t)
	status, _ := h.do(t, jsonRequest(http.MethodPatch, "/admin/mandiri/5", map[string]any{
		"nama_lengkap": "Siti Baru",
		"remove_files": []string{"foto", "ktp"},
	}))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"foto", "ktp"}, h.reg.change.RemoveFiles)
	assert.Equal(t, map[string]any{"nama_lengkap": "Siti Baru"}, h.reg.change.Fields)
}

func TestAdminUpdate_Multipart(t *testing.T) {
	h := newHarness(t)
	req := multipartRequest(t, http.MethodPatch, "/admin/kip/5",
		map[string][]string{"remove_files[]": {"kip_kk"}, "nama_lengkap": {"Budi"}},
		map[string]string{"kip_ktp": "ktp"},
	)

	status, _ := h.do(t, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, []string{"kip_kk"}, h.reg.change.RemoveFiles)
	assert.Equal(t, "Budi", h.reg.change.Fields["nama_lengkap"])
	assert.Len(t, h.reg.change.Files["kip_ktp"], 1)
}

func TestAdminStorageHealth(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, httptest.NewRequest(http.MethodGet, "/admin/health", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, false, body["healthy"])
}

func TestRemoveList(t *testing.T) {
	assert.Equal(t, []string{"foto", "ktp"}, removeList("foto, ktp"))
	assert.Equal(t, []string{"a", "b"}, removeList([]any{"a", " b "}))
	assert.Nil(t, removeList(nil))
}
