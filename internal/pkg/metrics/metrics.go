package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OTPIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_otp_issued_total",
		Help: "OTP challenges issued, by delivery result",
	}, []string{"result"})

	OTPVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_otp_verifications_total",
		Help: "OTP verify calls, by outcome",
	}, []string{"outcome"})

	PaymentReconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_payment_reconciliations_total",
		Help: "Reconcile calls, by ingress and whether the stored status changed",
	}, []string{"source", "changed"})

	InvoicesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmb_invoices_created_total",
		Help: "Invoices created at the payment gateway",
	})

	ArtifactOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmb_artifact_operations_total",
		Help: "Artifact store/delete operations, by operation and result",
	}, []string{"op", "result"})
)

func ObserveOTPVerification(outcome string) {
	OTPVerifications.WithLabelValues(outcome).Inc()
}

func ObserveReconcile(source string, changed bool) {
	label := "false"
	if changed {
		label = "true"
	}
	PaymentReconciliations.WithLabelValues(source, label).Inc()
}

func ObserveArtifact(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ArtifactOperations.WithLabelValues(op, result).Inc()
}
