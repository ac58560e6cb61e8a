package handlers

import (
	"context"
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
)

// HistoryReader reads archived transcripts
type HistoryReader interface {
	ListTranscripts(ctx context.Context, limit int) ([]storage.Record, error)
	GetTranscript(ctx context.Context, taskID string) (storage.Record, error)
}

// HistoryHandler serves the transcript archive
type HistoryHandler struct {
	db HistoryReader
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(db HistoryReader) *HistoryHandler {
	return &HistoryHandler{db: db}
}

// List returns the newest archived transcripts
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	transcripts, err := h.db.ListTranscripts(c.UserContext(), limit)
	if err != nil {
		logrus.WithError(err).Error("List transcripts")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list transcripts",
			"code":  "ERR_DB",
		})
	}
	return c.JSON(transcripts)
}

// Get returns one archived transcript's metadata
func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	rec, ok, err := h.lookup(c)
	if !ok {
		return err
	}
	return c.JSON(rec)
}

// Text returns the archived artifact itself
func (h *HistoryHandler) Text(c *fiber.Ctx) error {
	rec, ok, err := h.lookup(c)
	if !ok {
		return err
	}

	content, err := os.ReadFile(rec.LocalPath)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transcript file not found",
			"code":  "ERR_NO_FILE",
		})
	}
	return c.SendString(string(content))
}

// lookup writes the error response itself when ok is false
func (h *HistoryHandler) lookup(c *fiber.Ctx) (rec storage.Record, ok bool, err error) {
	rec, err = h.db.GetTranscript(c.UserContext(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return rec, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Transcript not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	if err != nil {
		logrus.WithError(err).Error("Get transcript")
		return rec, false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read transcript",
			"code":  "ERR_DB",
		})
	}
	return rec, true, nil
}
