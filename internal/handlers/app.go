package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/video-transcriber/internal/intake"
)

// uploadSlack covers multipart framing and the option fields sent with a file
const uploadSlack = 1 << 20

// AppConfig returns the fiber settings of the console server. Bodies are
// streamed, and the limit leaves room for a file exactly at maxFileSize.
func AppConfig(maxFileSize int64) fiber.Config {
	if maxFileSize <= 0 {
		maxFileSize = intake.MaxFileSize
	}
	return fiber.Config{
		BodyLimit:             int(maxFileSize + uploadSlack),
		StreamRequestBody:     true,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(maxFileSize),
	}
}

// errorHandler answers oversized bodies in the same shape as the local
// file checks; everything else gets fiber's default handling.
func errorHandler(maxFileSize int64) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ferr *fiber.Error
		if errors.As(err, &ferr) && ferr.Code == fiber.StatusRequestEntityTooLarge {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": intake.TooLarge(maxFileSize).Error(),
				"code":  "ERR_VALIDATION",
			})
		}
		return fiber.DefaultErrorHandler(c, err)
	}
}
