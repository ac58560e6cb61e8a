package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/proxy"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

const (
	defaultTaskPage = 20
	maxTaskPage     = 100
)

var downloadFormats = map[string]bool{
	types.FormatTXT:  true,
	types.FormatSRT:  true,
	types.FormatVTT:  true,
	types.FormatJSON: true,
	types.FormatDOCX: true,
}

// ProxyDownload streams the backend artifact so the page downloads from its
// own origin.
func (h *Console) ProxyDownload(c *fiber.Ctx) error {
	format := c.Query("format", types.DefaultFormat)
	if !downloadFormats[format] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported output format",
			"code":  "ERR_INVALID_FORMAT",
		})
	}

	target := h.backend.DownloadURL(c.Params("id"), format)
	if err := proxy.Do(c, target); err != nil {
		h.log.WithError(err).WithField("task_id", c.Params("id")).Error("Download proxy failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Backend unavailable",
			"code":  "ERR_BACKEND",
		})
	}
	c.Response().Header.Del(fiber.HeaderServer)
	return nil
}

// Platforms lists the platforms the backend can download from
func (h *Console) Platforms(c *fiber.Ctx) error {
	platforms, err := h.backend.SupportedPlatforms(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"platforms": platforms})
}

// Tasks pages through the backend's task list (?skip, ?limit, ?status)
func (h *Console) Tasks(c *fiber.Ctx) error {
	skip := c.QueryInt("skip", 0)
	if skip < 0 {
		skip = 0
	}
	limit := c.QueryInt("limit", defaultTaskPage)
	if limit < 1 || limit > maxTaskPage {
		limit = defaultTaskPage
	}

	list, err := h.backend.ListTasks(c.UserContext(), skip, limit, types.Status(c.Query("status")))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// DeleteTask removes a task on the backend. A caller still following that
// task gets a fresh session.
func (h *Console) DeleteTask(c *fiber.Ctx) error {
	taskID := c.Params("id")
	if err := h.backend.DeleteTask(c.UserContext(), taskID); err != nil {
		return respondError(c, err)
	}

	cs := h.sessionFor(c)
	if cs.TaskID() == taskID {
		cs.Reset()
	}
	h.log.WithField("task_id", taskID).Info("Task deleted")
	return c.JSON(fiber.Map{"message": "Task deleted", "task_id": taskID})
}

// Health reports console liveness and, when reachable, the backend's status
func (h *Console) Health(c *fiber.Ctx) error {
	resp := fiber.Map{
		"status":  "healthy",
		"version": Version,
		"backend": "unreachable",
	}
	if bh, err := h.backend.Health(c.UserContext()); err == nil {
		resp["backend"] = bh.Status
	} else {
		h.log.WithError(err).Debug("Backend health check failed")
	}
	return c.JSON(resp)
}
