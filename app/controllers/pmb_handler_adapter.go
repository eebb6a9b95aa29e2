package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// Global PMB controller instance
var pmbController *PmbController

// InitializePmbController installs the global controller used by the router.
func InitializePmbController(svc PmbServices) {
	pmbController = NewPmbController(svc)
}

// GetPmbController returns the global PMB controller instance
func GetPmbController() *PmbController {
	if pmbController == nil {
		panic("controllers: InitializePmbController must run before routes are served")
	}
	return pmbController
}

// Adapter functions used by the router

func HandleOtpSend(c *fiber.Ctx) error {
	return GetPmbController().HandleOtpSend(c)
}

func HandleOtpVerify(c *fiber.Ctx) error {
	return GetPmbController().HandleOtpVerify(c)
}

func HandlePaymentInvoiceCreate(c *fiber.Ctx) error {
	return GetPmbController().HandlePaymentInvoiceCreate(c)
}

func HandlePaymentShow(c *fiber.Ctx) error {
	return GetPmbController().HandlePaymentShow(c)
}

func HandlePaymentStatus(c *fiber.Ctx) error {
	return GetPmbController().HandlePaymentStatus(c)
}

// HandleXenditWebhook - Adapter for the invoice callback
func HandleXenditWebhook(c *fiber.Ctx) error {
	return GetPmbController().HandleXenditWebhook(c)
}

func HandleRegister(c *fiber.Ctx) error {
	return GetPmbController().HandleRegister(c)
}

// HandleAdminRegistrations - Adapter for the merged registration listing
func HandleAdminRegistrations(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminRegistrations(c)
}

func HandleAdminSummary(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminSummary(c)
}

func HandleAdminLookup(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminLookup(c)
}

func HandleAdminRegistrationShow(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminRegistrationShow(c)
}

func HandleAdminRegistrationUpdate(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminRegistrationUpdate(c)
}

func HandleAdminRegistrationDelete(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminRegistrationDelete(c)
}

func HandleAdminStorageHealth(c *fiber.Ctx) error {
	return GetPmbController().HandleAdminStorageHealth(c)
}
