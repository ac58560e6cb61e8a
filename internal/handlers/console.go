// Package handlers exposes the transcription console over HTTP: the /ui
// actions of the page, its event feed and websocket, and the passthrough
// and history endpoints.
package handlers

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/events"
	"github.com/codebuildervaibhav/video-transcriber/internal/intake"
	"github.com/codebuildervaibhav/video-transcriber/internal/queue"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

const (
	storeTimeout  = 5 * time.Second
	maxEventsWait = 30 * time.Second
)

// Backend is the REST API surface the console uses
type Backend interface {
	session.Backend
	DownloadURL(taskID, format string) string
	SupportedPlatforms(ctx context.Context) ([]types.PlatformInfo, error)
	ListTasks(ctx context.Context, skip, limit int, status types.Status) (*types.TaskList, error)
	DeleteTask(ctx context.Context, taskID string) error
	Health(ctx context.Context) (*types.Health, error)
}

// Archiver accepts completed tasks for archival
type Archiver interface {
	EnqueueJob(job *queue.Job) error
}

// ConsoleConfig tunes the console
type ConsoleConfig struct {
	Session       session.Config
	CookieName    string
	SessionTTL    time.Duration
	ArchiveFormat string
	EventBuffer   int
}

// Console keeps one session controller per browser
type Console struct {
	backend Backend
	store   storage.SessionStore
	archive Archiver
	cfg     ConsoleConfig
	log     *logrus.Entry
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*consoleSession
}

type consoleSession struct {
	*session.Session
	bus      *events.Bus
	lastSeen time.Time
}

// NewConsole creates a console; archive may be nil
func NewConsole(backend Backend, store storage.SessionStore, archive Archiver, cfg ConsoleConfig) *Console {
	if cfg.CookieName == "" {
		cfg.CookieName = "transcriber_session"
	}
	return &Console{
		backend:  backend,
		store:    store,
		archive:  archive,
		cfg:      cfg,
		log:      logrus.WithField("component", "console"),
		now:      time.Now,
		sessions: make(map[string]*consoleSession),
	}
}

// Mount registers the /ui routes on r
func (h *Console) Mount(r fiber.Router) {
	r.Post("/select", h.Select)
	r.Post("/upload", h.Upload)
	r.Post("/url", h.SubmitURL)
	r.Post("/validate", h.Validate)
	r.Post("/url-input", h.URLInput)
	r.Post("/download", h.Download)
	r.Post("/reset", h.Reset)
	r.Get("/state", h.State)
	r.Get("/tasks", h.Tasks)
	r.Delete("/tasks/:id", h.DeleteTask)
	r.Get("/events", h.Events)
	r.Get("/ws", h.Upgrade, h.Stream())
}

// Close stops every session
func (h *Console) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cs := range h.sessions {
		cs.Close()
		delete(h.sessions, id)
	}
}

// sessionFor returns the caller's session, issuing a cookie for new browsers
func (h *Console) sessionFor(c *fiber.Ctx) *consoleSession {
	id := c.Cookies(h.cfg.CookieName)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
	}

	cookie := &fiber.Cookie{
		Name:     h.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if h.cfg.SessionTTL > 0 {
		cookie.Expires = h.now().Add(h.cfg.SessionTTL)
	}
	c.Cookie(cookie)

	return h.lookup(c.UserContext(), id)
}

func (h *Console) lookup(ctx context.Context, id string) *consoleSession {
	h.mu.Lock()
	if cs, ok := h.sessions[id]; ok {
		cs.lastSeen = h.now()
		h.mu.Unlock()
		return cs
	}

	cs := h.newSession(id)
	h.sessions[id] = cs
	h.pruneLocked()
	h.mu.Unlock()

	h.resume(ctx, cs)
	return cs
}

func (h *Console) newSession(id string) *consoleSession {
	log := h.log.WithField("session", id)
	bus := events.NewBus(h.cfg.EventBuffer)
	cs := &consoleSession{bus: bus, lastSeen: h.now()}
	cs.Session = session.New(id, h.backend, newWebView(bus, log), h.cfg.Session, session.Hooks{
		JobStarted: func(taskID string) {
			h.saveRecord(storage.SessionRecord{ID: id, TaskID: taskID})
		},
		Cleared: func() {
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			if err := h.store.DeleteSession(ctx, id); err != nil {
				log.WithError(err).Warn("Delete session record")
			}
		},
		Completed: func(taskID string, res *types.TaskResult) {
			h.archiveResult(log, id, taskID, res)
		},
		Failed: func(f *types.JobFailure) {
			log.WithField("task_id", f.TaskID).Warnf("Task failed: %s", f.Reason)
		},
		ResultFailed: func(taskID string, err error) {
			log.WithError(err).WithField("task_id", taskID).Warn("Result not archived")
		},
	})
	return cs
}

// resume restarts polling for a task a previous process was following
func (h *Console) resume(ctx context.Context, cs *consoleSession) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	rec, err := h.store.LoadSession(ctx, cs.ID())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.log.WithError(err).WithField("session", cs.ID()).Warn("Load session record")
		}
		return
	}
	if rec.TaskID != "" {
		h.log.WithFields(logrus.Fields{"session": rec.ID, "task_id": rec.TaskID}).Info("Resuming task")
		cs.StartJob(rec.TaskID)
	}
}

func (h *Console) archiveResult(log *logrus.Entry, id, taskID string, res *types.TaskResult) {
	if h.archive == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	rec, err := h.store.LoadSession(ctx, id)
	if err == nil && rec.TaskID == taskID && rec.Archived {
		return
	}

	if err := h.archive.EnqueueJob(queue.NewJob(res, h.cfg.ArchiveFormat)); err != nil {
		log.WithError(err).WithField("task_id", taskID).Warn("Archive enqueue failed")
		return
	}
	h.saveRecord(storage.SessionRecord{ID: id, TaskID: taskID, Archived: true})
}

func (h *Console) saveRecord(rec storage.SessionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := h.store.SaveSession(ctx, rec); err != nil {
		h.log.WithError(err).WithField("session", rec.ID).Warn("Save session record")
	}
}

// pruneLocked drops idle sessions that are not polling; callers hold h.mu
func (h *Console) pruneLocked() {
	if h.cfg.SessionTTL <= 0 {
		return
	}
	cutoff := h.now().Add(-h.cfg.SessionTTL)
	for id, cs := range h.sessions {
		if cs.lastSeen.Before(cutoff) && !cs.Polling() {
			cs.Close()
			delete(h.sessions, id)
		}
	}
}

// Select pre-checks a picked file
func (h *Console) Select(c *fiber.Ctx) error {
	var f intake.FileSelection
	if err := c.BodyParser(&f); err != nil {
		return invalidBody(c)
	}

	cs := h.sessionFor(c)
	if err := cs.SelectFile(f); err != nil {
		return respondError(c, err)
	}
	return c.JSON(render.FileInfo{Name: f.Name, Size: render.FormatFileSize(f.Size)})
}

// Upload forwards a multipart file to the backend and starts polling
func (h *Console) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
			"code":  "ERR_NO_FILE",
		})
	}

	file, err := fh.Open()
	if err != nil {
		h.log.WithError(err).Error("Open uploaded file")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read file",
			"code":  "ERR_READ_FAILED",
		})
	}
	defer file.Close()

	cs := h.sessionFor(c)
	up := &types.FileUpload{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Body:        file,
		Options:     uploadOptions(c),
	}
	if err := cs.SubmitFile(c.UserContext(), up); err != nil {
		return respondError(c, err)
	}
	return c.JSON(cs.State())
}

func uploadOptions(c *fiber.Ctx) types.UploadOptions {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(c.FormValue(key))
		return n
	}
	ts := c.FormValue("include_timestamps")
	return types.UploadOptions{
		Language:            c.FormValue("language", types.DefaultLanguage),
		OutputFormat:        c.FormValue("output_format", types.DefaultFormat),
		IncludeTimestamps:   ts == "on" || ts == "true",
		MaxLineLength:       atoi("max_line_length"),
		MaxSubtitleDuration: atoi("max_subtitle_duration"),
	}
}

// SubmitURL creates a task from the URL form
func (h *Console) SubmitURL(c *fiber.Ctx) error {
	var form intake.URLForm
	if err := c.BodyParser(&form); err != nil {
		return invalidBody(c)
	}

	cs := h.sessionFor(c)
	if err := cs.SubmitURL(c.UserContext(), form); err != nil {
		return respondError(c, err)
	}
	return c.JSON(cs.State())
}

type urlBody struct {
	URL string `json:"url" form:"url"`
}

// Validate checks a link on demand
func (h *Console) Validate(c *fiber.Ctx) error {
	var body urlBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	cs := h.sessionFor(c)
	if err := cs.ValidateURL(c.UserContext(), body.URL); err != nil {
		return respondError(c, err)
	}
	return c.JSON(cs.State())
}

// URLInput feeds an edit of the URL field into the debounced auto check
func (h *Console) URLInput(c *fiber.Ctx) error {
	var body urlBody
	if err := c.BodyParser(&body); err != nil {
		return invalidBody(c)
	}

	h.sessionFor(c).URLChanged(body.URL)
	return c.SendStatus(fiber.StatusAccepted)
}

// Download returns the artifact link of the current task
func (h *Console) Download(c *fiber.Ctx) error {
	var body struct {
		Format    string `json:"format" form:"format"`
		URLFormat string `json:"url_format" form:"url_format"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return invalidBody(c)
		}
	}

	link, err := h.sessionFor(c).Download(body.Format, body.URLFormat)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": link})
}

// Reset starts over
func (h *Console) Reset(c *fiber.Ctx) error {
	cs := h.sessionFor(c)
	cs.Reset()
	return c.JSON(cs.State())
}

// State reports the current task and poll state
func (h *Console) State(c *fiber.Ctx) error {
	return c.JSON(h.sessionFor(c).State())
}

// Events returns view events after ?since=N. With ?wait=S it blocks up to
// S seconds for the first new event.
func (h *Console) Events(c *fiber.Ctx) error {
	cs := h.sessionFor(c)
	since := int64(c.QueryInt("since", 0))

	changed := cs.bus.Changed()
	evs := cs.bus.Since(since)
	if wait := time.Duration(c.QueryInt("wait", 0)) * time.Second; len(evs) == 0 && wait > 0 {
		if wait > maxEventsWait {
			wait = maxEventsWait
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-changed:
			evs = cs.bus.Since(since)
		case <-timer.C:
		}
	}

	if evs == nil {
		evs = []events.Event{}
	}
	return c.JSON(fiber.Map{
		"events":   evs,
		"last_seq": cs.bus.LastSeq(),
	})
}

func invalidBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "Invalid request body",
		"code":  "ERR_INVALID_BODY",
	})
}

// respondError maps session errors to HTTP: local input problems are 400,
// backend failures 502.
func respondError(c *fiber.Ctx, err error) error {
	var (
		verr *types.ValidationError
		rerr *types.RequestError
	)
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": verr.Error(),
			"code":  "ERR_VALIDATION",
		})
	case errors.As(err, &rerr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": rerr.Error(),
			"code":  "ERR_BACKEND",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_INTERNAL",
		})
	}
}
