package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pmbdev/intake/app/models"
	"github.com/pmbdev/intake/internal/pkg/apperr"
	"github.com/pmbdev/intake/internal/pkg/payment"
)

const callbackTokenHeader = "x-callback-token"

type paymentStatusRequest struct {
	ExternalID string `json:"external_id" form:"external_id"`
}

func paymentJSON(p *models.PmbPayment) fiber.Map {
	return fiber.Map{
		"external_id": p.ExternalID,
		"invoice_id":  p.InvoiceID,
		"invoice_url": p.InvoiceURL,
		"amount":      p.Amount,
		"currency":    p.Currency,
		"method":      p.Method,
		"jalur":       p.Variant,
		"status":      p.Status,
		"is_paid":     p.IsPaid(),
		"paid_at":     p.PaidAt,
		"expiry_date": p.ExpiryDate,
	}
}

// HandlePaymentInvoiceCreate opens a registration-fee invoice at the gateway.
func (pc *PmbController) HandlePaymentInvoiceCreate(c *fiber.Ctx) error {
	var req payment.InvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeValidation, "Request tidak valid"))
	}

	p, err := pc.svc.Payments.CreateInvoice(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    paymentJSON(p),
	})
}

// HandlePaymentShow returns the stored invoice without polling the gateway.
func (pc *PmbController) HandlePaymentShow(c *fiber.Ctx) error {
	p, err := pc.svc.Payments.Get(c.UserContext(), c.Params("external_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": paymentJSON(p)})
}

// HandlePaymentStatus polls the gateway and reconciles the stored invoice.
func (pc *PmbController) HandlePaymentStatus(c *fiber.Ctx) error {
	var req paymentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeValidation, "Request tidak valid"))
	}

	p, err := pc.svc.Payments.Refresh(c.UserContext(), strings.TrimSpace(req.ExternalID))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "data": paymentJSON(p)})
}

// HandleXenditWebhook applies an invoice callback. The raw body is copied
// before fasthttp recycles the request buffer.
func (pc *PmbController) HandleXenditWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	token := c.Get(callbackTokenHeader)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := pc.svc.Payments.HandleCallback(ctx, token, rawBody)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":          true,
		"external_id": p.ExternalID,
		"status":      p.Status,
	})
}
