package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmbdev/intake/app/models"
)

var (
	t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(10 * time.Minute)
	t2 = t0.Add(20 * time.Minute)
)

func pending() models.PmbPayment {
	return models.PmbPayment{ExternalID: "PMB-MANDIRI-ABC1234567", Status: models.PaymentStatusPending}
}

func tp(t time.Time) *time.Time { return &t }

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "paid", want: models.PaymentStatusPaid},
		{in: " Settled ", want: models.PaymentStatusSettled},
		{in: "EXPIRED", want: models.PaymentStatusExpired},
		{in: "refunded", want: ""},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeStatus(tt.in); got != tt.want {
			t.Fatalf("NormalizeStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMerge_StatusNeverRegresses(t *testing.T) {
	p, changed := Merge(pending(), Update{Status: "PAID", PaidAt: tp(t1)}, t2)
	require.True(t, changed)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	p, _ = Merge(p, Update{Status: "PENDING"}, t2)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	p, _ = Merge(p, Update{Status: "EXPIRED"}, t2)
	assert.Equal(t, models.PaymentStatusPaid, p.Status)

	p, _ = Merge(p, Update{Status: "SETTLED"}, t2)
	assert.Equal(t, models.PaymentStatusSettled, p.Status)

	p, _ = Merge(p, Update{Status: "PAID"}, t2)
	assert.Equal(t, models.PaymentStatusSettled, p.Status)

	p, _ = Merge(p, Update{Status: "bogus"}, t2)
	assert.Equal(t, models.PaymentStatusSettled, p.Status)
}

func TestMerge_PaidAtSetOnceFromGatewayOrNow(t *testing.T) {
	p, _ := Merge(pending(), Update{Status: "PAID"}, t2)
	require.NotNil(t, p.PaidAt)
	assert.Equal(t, t2, *p.PaidAt)
	assert.False(t, p.PaidAtReported)

	// A reported value replaces a synthesized one.
	p, changed := Merge(p, Update{Status: "PAID", PaidAt: tp(t1)}, t2)
	assert.True(t, changed)
	assert.Equal(t, t1, *p.PaidAt)
	assert.True(t, p.PaidAtReported)

	// A later report and an update without paid_at leave it alone.
	p, _ = Merge(p, Update{Status: "SETTLED", PaidAt: tp(t2)}, t2)
	assert.Equal(t, t1, *p.PaidAt)
	p, _ = Merge(p, Update{Status: "SETTLED"}, t2.Add(time.Hour))
	assert.Equal(t, t1, *p.PaidAt)
}

func TestMerge_PendingDoesNotSetPaidAt(t *testing.T) {
	p, _ := Merge(pending(), Update{Status: "PENDING", InvoiceURL: "https://checkout/x"}, t2)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, "https://checkout/x", p.InvoiceURL)
}

func TestMerge_Idempotent(t *testing.T) {
	u := Update{Status: "PAID", PaidAt: tp(t1), Raw: []byte(`{"status":"PAID"}`)}
	once, _ := Merge(pending(), u, t2)
	twice, changed := Merge(once, u, t2)
	assert.False(t, changed)
	assert.Equal(t, once.Status, twice.Status)
	assert.Equal(t, *once.PaidAt, *twice.PaidAt)
}

func TestMerge_OrderIndependent(t *testing.T) {
	updates := []Update{
		{Status: "PAID", PaidAt: tp(t1)},
		{Status: "PAID"},
		{Status: "PENDING"},
		{Status: "SETTLED", PaidAt: tp(t2)},
		{Status: "EXPIRED"},
	}

	permute(len(updates), func(order []int) {
		p := pending()
		for i, idx := range order {
			p, _ = Merge(p, updates[idx], t0.Add(time.Duration(i)*time.Hour))
		}
		assert.Equal(t, models.PaymentStatusSettled, p.Status, "order %v", order)
		require.NotNil(t, p.PaidAt)
		assert.Equal(t, t1, *p.PaidAt, "order %v", order)
	})
}

// Scenario: push with paid_at, then a poll without it.
func TestMerge_PushThenPollKeepsReportedPaidAt(t *testing.T) {
	p, _ := Merge(pending(), Update{Status: "PAID", PaidAt: tp(t1)}, t1)
	p, _ = Merge(p, Update{Status: "PAID"}, t2)
	assert.Equal(t, t1, *p.PaidAt)
}

func TestMerge_RawAlwaysOverwritesAndInvoiceIDFilledOnce(t *testing.T) {
	p, _ := Merge(pending(), Update{Status: "PENDING", InvoiceID: "inv-1", Raw: []byte(`{"a":1}`)}, t0)
	require.NotNil(t, p.InvoiceID)
	assert.Equal(t, "inv-1", *p.InvoiceID)

	p, _ = Merge(p, Update{Status: "PENDING", InvoiceID: "inv-2", Raw: []byte(`{"b":2}`)}, t0)
	assert.Equal(t, "inv-1", *p.InvoiceID)
	assert.JSONEq(t, `{"b":2}`, string(p.RawPayload))
}

func permute(n int, visit func([]int)) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == n {
			visit(append([]int(nil), idx...))
			return
		}
		for i := k; i < n; i++ {
			idx[k], idx[i] = idx[i], idx[k]
			rec(k + 1)
			idx[k], idx[i] = idx[i], idx[k]
		}
	}
	rec(0)
}
