// Package session is the per-user controller of the transcription flow:
// input checks, URL validation, job polling and result rendering. It holds
// the only mutable client state (current task id and poll loop) and drives
// a View; it never touches markup directly.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/intake"
	"github.com/codebuildervaibhav/video-transcriber/internal/notify"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
	"github.com/codebuildervaibhav/video-transcriber/internal/urlcheck"
)

// DefaultPollInterval is the spacing between status checks
const DefaultPollInterval = 2000 * time.Millisecond

const autoValidateTimeout = 30 * time.Second

// Backend is the part of the REST API a session needs
type Backend interface {
	SubmitFile(ctx context.Context, up *types.FileUpload) (*types.TaskCreated, error)
	SubmitURL(ctx context.Context, body types.URLRequest) (*types.TaskCreated, error)
	ValidateURL(ctx context.Context, rawURL string) (*types.URLValidation, error)
	Status(ctx context.Context, taskID string) (*types.TaskStatus, error)
	Result(ctx context.Context, taskID string) (*types.TaskResult, error)
	DownloadPath(taskID, format string) string
}

// Hooks are optional callbacks for components outside the view
type Hooks struct {
	JobStarted func(taskID string)
	Cleared    func()
	Completed  func(taskID string, res *types.TaskResult)
	Failed     func(failure *types.JobFailure)

	// ResultFailed fires when a completed task's result cannot be loaded
	ResultFailed func(taskID string, err error)
}

// Config tunes timing and limits; zero values use the defaults
type Config struct {
	PollInterval  time.Duration
	DebounceDelay time.Duration
	NotifyTTL     time.Duration

	// MaxFileSize caps uploads; zero means intake.MaxFileSize
	MaxFileSize int64
}

// State is a snapshot of the session
type State struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id,omitempty"`
	Polling   bool   `json:"polling"`
}

// Session owns the current task id and its poll loop
type Session struct {
	id        string
	backend   Backend
	view      View
	notes     *notify.Center
	hooks     Hooks
	interval  time.Duration
	maxFile   int64
	autoCheck *urlcheck.Debouncer[string]
	log       *logrus.Entry

	mu      sync.Mutex
	taskID  string
	gen     uint64
	cancel  context.CancelFunc
	polling bool
	closed  bool
}

// New creates an idle session
func New(id string, backend Backend, view View, cfg Config, hooks Hooks) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	s := &Session{
		id:       id,
		backend:  backend,
		view:     view,
		notes:    notify.NewCenter(view, cfg.NotifyTTL),
		hooks:    hooks,
		interval: cfg.PollInterval,
		maxFile:  cfg.MaxFileSize,
		log:      logrus.WithField("session", id),
	}
	s.autoCheck = urlcheck.NewDebouncer(cfg.DebounceDelay, s.autoValidate)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Notes exposes the session's notification center
func (s *Session) Notes() *notify.Center {
	return s.notes
}

// TaskID returns the current task id, empty when idle
func (s *Session) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// Polling reports whether a poll loop is active
func (s *Session) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}

// State returns a consistent snapshot of task id and poll state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{SessionID: s.id, TaskID: s.taskID, Polling: s.polling}
}

// SelectFile checks a picked file and shows its name and size
func (s *Session) SelectFile(f intake.FileSelection) error {
	if err := intake.CheckFileLimit(f, s.maxFile); err != nil {
		s.notes.Error(err.Error())
		return err
	}

	s.view.ShowFileInfo(render.FileInfo{Name: f.Name, Size: render.FormatFileSize(f.Size)})
	s.notes.Success(fmt.Sprintf("File %q selected for upload", f.Name))
	return nil
}

// SubmitFile checks and uploads a file, then starts polling the created task
func (s *Session) SubmitFile(ctx context.Context, up *types.FileUpload) error {
	sel := intake.FileSelection{Name: up.Name, Size: up.Size, ContentType: up.ContentType}
	if err := intake.CheckFileLimit(sel, s.maxFile); err != nil {
		s.notes.Error(err.Error())
		return err
	}

	s.view.SetLoading(ControlUpload, true)
	defer s.view.SetLoading(ControlUpload, false)

	s.notes.Info("Uploading file...")
	created, err := s.backend.SubmitFile(ctx, up)
	if err != nil {
		s.log.WithError(err).WithField("file", up.Name).Warn("File upload failed")
		s.notes.Error("Upload error: " + err.Error())
		return fmt.Errorf("submit file: %w", err)
	}
	return s.begin(types.SourceFile, created, "File uploaded, processing is starting...")
}

// SubmitURL builds the URL request from the form and creates a task
func (s *Session) SubmitURL(ctx context.Context, form intake.URLForm) error {
	body, err := intake.URLRequestFromForm(form)
	if err != nil {
		s.notes.Error(err.Error())
		return err
	}

	s.view.SetLoading(ControlURLUpload, true)
	defer s.view.SetLoading(ControlURLUpload, false)

	s.notes.Info("Creating task...")
	created, err := s.backend.SubmitURL(ctx, body)
	if err != nil {
		s.log.WithError(err).WithField("url", body.URL).Warn("Task creation failed")
		s.notes.Error("Error: " + err.Error())
		return fmt.Errorf("submit url: %w", err)
	}
	return s.begin(types.SourceURL, created, "Task created, download is starting...")
}

func (s *Session) begin(source string, created *types.TaskCreated, message string) error {
	if created == nil || created.TaskID == "" {
		err := &types.RequestError{Op: "task creation", Detail: "Backend returned no task id"}
		s.notes.Error("Error: " + err.Error())
		return err
	}

	s.log.WithFields(logrus.Fields{"task_id": created.TaskID, "source": source}).Info("Task created")
	s.StartJob(created.TaskID)
	s.notes.Success(message)
	return nil
}

// ValidateURL asks the backend about a link and shows the outcome panel
func (s *Session) ValidateURL(ctx context.Context, raw string) error {
	rawURL := strings.TrimSpace(raw)
	if rawURL == "" {
		err := types.NewValidationError("Enter a video URL")
		s.notes.Error(err.Error())
		return err
	}

	s.view.SetLoading(ControlValidate, true)
	defer s.view.SetLoading(ControlValidate, false)

	v, err := s.backend.ValidateURL(ctx, rawURL)
	if err != nil {
		s.notes.Error("Validation error: " + err.Error())
		return fmt.Errorf("validate url: %w", err)
	}

	panel, err := render.ValidationPanel(v)
	if err != nil {
		s.log.WithError(err).Error("Render validation panel")
		return fmt.Errorf("render validation: %w", err)
	}
	s.view.ShowValidation(panel)
	return nil
}

// URLChanged feeds an edit of the URL field into the debounced auto check
func (s *Session) URLChanged(raw string) {
	if s.isClosed() {
		return
	}
	s.autoCheck.Call(raw)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// autoValidate runs after the debounce window; partial input is ignored
func (s *Session) autoValidate(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !intake.IsWellFormedURL(raw) || s.isClosed() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), autoValidateTimeout)
	defer cancel()
	if err := s.ValidateURL(ctx, raw); err != nil {
		s.log.WithError(err).Debug("Auto validation failed")
	}
}

// Download starts a browser-native download of the current task's artifact.
// The file-upload selector wins over the URL form selector.
func (s *Session) Download(fileFormat, urlFormat string) (string, error) {
	taskID := s.TaskID()
	if taskID == "" {
		err := types.NewValidationError("No active task to download")
		s.notes.Error(err.Error())
		return "", err
	}

	format := render.PickFormat(fileFormat, urlFormat)
	link := s.backend.DownloadPath(taskID, format)
	s.view.StartDownload(link, fmt.Sprintf("transcription_%s.%s", taskID, format))
	s.notes.Success("Download started...")
	return link, nil
}

// Reset cancels polling, forgets the task and returns the page to its
// initial state. Late responses for the old task are discarded.
func (s *Session) Reset() {
	s.autoCheck.Cancel()
	s.mu.Lock()
	s.stopLocked()
	s.gen++
	old := s.taskID
	s.taskID = ""
	s.view.ResetForms()
	s.view.ShowSections(Sections{})
	s.mu.Unlock()

	s.notes.Clear()
	if s.hooks.Cleared != nil {
		s.hooks.Cleared()
	}
	if old != "" {
		s.log.WithField("task_id", old).Info("Session reset")
	}
	s.notes.Success("Ready for a new task")
}

// Close stops any poll loop, drops a pending auto validation and dismisses
// notifications. A closed session ignores further URL edits.
func (s *Session) Close() {
	s.autoCheck.Cancel()
	s.mu.Lock()
	s.stopLocked()
	s.gen++
	s.closed = true
	s.mu.Unlock()
	s.notes.Clear()
}

// stopLocked cancels the current job context; callers hold s.mu
func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.polling = false
}
