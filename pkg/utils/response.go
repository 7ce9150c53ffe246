package utils

import "github.com/gofiber/fiber/v2"

// FlashKind mirrors the transient status message shown after a mutation.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashInfo    FlashKind = "info"
)

func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// Flash is Success plus a status message the client surfaces on the page it
// navigates back to.
func Flash(c *fiber.Ctx, status int, kind FlashKind, text string, data interface{}) error {
	body := fiber.Map{
		"success": true,
		"flash":   fiber.Map{"kind": kind, "text": text},
	}
	if data != nil {
		body["data"] = data
	}
	return c.Status(status).JSON(body)
}

func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// FieldError annotates the failure with the offending form field so the
// client can render the message inline instead of as a page-level flash.
func FieldError(c *fiber.Ctx, status int, field, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"field":   field,
		"error":   message,
	})
}

// ErrorRedirect is used when the target view is no longer usable (missing
// user, missing profile) and the client should navigate away.
func ErrorRedirect(c *fiber.Ctx, status int, message, redirect string) error {
	return c.Status(status).JSON(fiber.Map{
		"success":  false,
		"error":    message,
		"redirect": redirect,
	})
}
