package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pmbdev/intake/internal/pkg/apperr"
)

type otpSendRequest struct {
	Phone string `json:"phone" form:"phone"`
}

type otpVerifyRequest struct {
	Phone string `json:"phone" form:"phone"`
	OTP   string `json:"otp" form:"otp"`
}

// HandleOtpSend issues a fresh code for the phone and sends it over WhatsApp.
func (pc *PmbController) HandleOtpSend(c *fiber.Ctx) error {
	var req otpSendRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeValidation, "Request tidak valid"))
	}

	issued, err := pc.svc.OTP.Issue(c.UserContext(), req.Phone)
	if err != nil {
		return respondError(c, err)
	}

	resp := fiber.Map{
		"success":     true,
		"message":     "OTP berhasil dikirim ke WhatsApp.",
		"phone":       issued.Key,
		"ttl_seconds": int(issued.TTL.Seconds()),
		"expires_at":  issued.ExpiresAt,
	}
	if pc.svc.EchoOTP {
		resp["debug_otp"] = issued.Code
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleOtpVerify checks the submitted code against the active challenge.
func (pc *PmbController) HandleOtpVerify(c *fiber.Ctx) error {
	var req otpVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeValidation, "Request tidak valid"))
	}
	code := strings.TrimSpace(req.OTP)
	if code == "" {
		return respondError(c, apperr.Validation("Kode OTP wajib diisi"))
	}

	ch, err := pc.svc.OTP.Verify(c.UserContext(), req.Phone, code)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":           true,
		"message":           "OTP berhasil diverifikasi.",
		"phone":             ch.Key,
		"otp_terverifikasi": true,
		"verified_at":       ch.VerifiedAt,
	})
}
