package payment

import (
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/pmbdev/intake/internal/pkg/env"
)

const defaultInvoiceAmount = 100000

// Config holds invoice settings; the server is the source of truth for the amount.
type Config struct {
	CallbackToken      string
	Amount             decimal.Decimal
	Currency           string
	ExpiryMinutes      int
	SuccessRedirectURL string
	FailureRedirectURL string
	CountryCode        string
}

func LoadConfig() Config {
	amount, err := decimal.NewFromString(strings.TrimSpace(env.GetEnv("XENDIT_INVOICE_AMOUNT", "100000")))
	if err != nil || !amount.IsPositive() {
		log.Warnf("[Payment] Invalid XENDIT_INVOICE_AMOUNT, using %d", defaultInvoiceAmount)
		amount = decimal.NewFromInt(defaultInvoiceAmount)
	}
	return Config{
		CallbackToken:      strings.TrimSpace(env.GetEnv("XENDIT_CALLBACK_TOKEN", "")),
		Amount:             amount,
		Currency:           strings.ToUpper(strings.TrimSpace(env.GetEnv("XENDIT_INVOICE_CURRENCY", "IDR"))),
		ExpiryMinutes:      env.GetEnvInt("XENDIT_INVOICE_EXPIRY_MINUTES", 1440),
		SuccessRedirectURL: strings.TrimSpace(env.GetEnv("XENDIT_SUCCESS_REDIRECT_URL", "")),
		FailureRedirectURL: strings.TrimSpace(env.GetEnv("XENDIT_FAILURE_REDIRECT_URL", "")),
		CountryCode:        env.GetEnv("WA_COUNTRY_CODE", "62"),
	}
}
