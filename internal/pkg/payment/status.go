package payment

import (
	"bytes"
	"strings"
	"time"

	"github.com/pmbdev/intake/app/models"
)

// statusRank totally orders invoice statuses. A stored status is only ever
// replaced by one of equal or higher rank, which makes Merge a join.
var statusRank = map[string]int{
	models.PaymentStatusPending: 0,
	models.PaymentStatusExpired: 1,
	models.PaymentStatusPaid:    2,
	models.PaymentStatusSettled: 3,
}

// NormalizeStatus upper-cases a gateway status. Unknown values yield "".
func NormalizeStatus(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if _, ok := statusRank[s]; !ok {
		return ""
	}
	return s
}

func IsPaidStatus(s string) bool {
	s = NormalizeStatus(s)
	return s == models.PaymentStatusPaid || s == models.PaymentStatusSettled
}

// Merge folds one observation into the stored invoice and reports whether
// status or paid_at changed. Applying the same updates in any order, any
// number of times, converges to the same status and paid_at.
func Merge(stored models.PmbPayment, u Update, now time.Time) (models.PmbPayment, bool) {
	out := stored
	if len(u.Raw) > 0 {
		out.RawPayload = append(out.RawPayload[:0:0], u.Raw...)
	}

	if next := NormalizeStatus(u.Status); next != "" {
		current, known := statusRank[NormalizeStatus(out.Status)]
		if !known || statusRank[next] > current {
			out.Status = next
		}
	}

	if IsPaidStatus(out.Status) {
		switch {
		case u.PaidAt != nil && !u.PaidAt.IsZero():
			reported := u.PaidAt.UTC()
			if out.PaidAt == nil || !out.PaidAtReported || reported.Before(*out.PaidAt) {
				out.PaidAt = &reported
				out.PaidAtReported = true
			}
		case out.PaidAt == nil:
			synthesized := now.UTC()
			out.PaidAt = &synthesized
			out.PaidAtReported = false
		}
	}

	if url := strings.TrimSpace(u.InvoiceURL); url != "" {
		out.InvoiceURL = url
	}
	if u.ExpiryDate != nil && !u.ExpiryDate.IsZero() {
		exp := u.ExpiryDate.UTC()
		out.ExpiryDate = &exp
	}
	if id := strings.TrimSpace(u.InvoiceID); id != "" && (out.InvoiceID == nil || *out.InvoiceID == "") {
		out.InvoiceID = &id
	}

	changed := out.Status != stored.Status || !sameTime(out.PaidAt, stored.PaidAt) ||
		out.InvoiceURL != stored.InvoiceURL || !sameTime(out.ExpiryDate, stored.ExpiryDate) ||
		!bytes.Equal(out.RawPayload, stored.RawPayload)
	return out, changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
