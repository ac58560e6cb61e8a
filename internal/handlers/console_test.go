package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/video-transcriber/internal/apiclient"
	"github.com/codebuildervaibhav/video-transcriber/internal/events"
	"github.com/codebuildervaibhav/video-transcriber/internal/intake"
	"github.com/codebuildervaibhav/video-transcriber/internal/queue"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
)

const cookieName = "transcriber_session"

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transcribe/url", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["url"] == "https://unsupported.example/v" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail":"Unsupported platform"}`))
			return
		}
		_, _ = w.Write([]byte(`{"task_id":"t-1","status":"pending"}`))
	})
	mux.HandleFunc("/api/v1/transcribe/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/transcribe/":
			if r.Method == http.MethodGet {
				if r.URL.Query().Get("skip") != "5" || r.URL.Query().Get("limit") != "20" || r.URL.Query().Get("status") != "completed" {
					t.Errorf("list query = %s", r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(`{"tasks":[{"task_id":"t-1","status":"completed","progress":100}],"total":6,"skip":5,"limit":20}`))
				return
			}
			if err := r.ParseMultipartForm(4 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"pending"}`))
		case "/api/v1/transcribe/t-1":
			if r.Method != http.MethodDelete {
				http.Error(w, "method", http.StatusMethodNotAllowed)
				return
			}
			_, _ = w.Write([]byte(`{"message":"Task t-1 deleted"}`))
		case "/api/v1/transcribe/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Task not found"}`))
		case "/api/v1/transcribe/t-1/status":
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"completed","progress":100}`))
		case "/api/v1/transcribe/t-1/result":
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"completed","video_metadata":{"title":"Talk","platform":"youtube"},
				"result":{"text":"hello world","language":"en","confidence":0.9,"processing_time":2,"segments":[]}}`))
		case "/api/v1/transcribe/t-1/download":
			w.Header().Set("Content-Disposition", `attachment; filename="transcription_t-1.`+r.URL.Query().Get("format")+`"`)
			_, _ = w.Write([]byte("WEBVTT\n\nhello world"))
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/api/v1/platforms/supported", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"platforms":[{"name":"youtube","domains":["youtube.com"]}]}`))
	})
	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy","service":"backend","version":"1.0.0"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type recordingArchiver struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (a *recordingArchiver) EnqueueJob(job *queue.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, job)
	return nil
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.jobs)
}

func newTestApp(t *testing.T, backendURL string, store storage.SessionStore, archive Archiver) *fiber.App {
	t.Helper()
	return newTestAppWithLimit(t, backendURL, store, archive, 0, fiber.New())
}

func newTestAppWithLimit(t *testing.T, backendURL string, store storage.SessionStore, archive Archiver,
	maxFileSize int64, app *fiber.App) *fiber.App {
	t.Helper()
	h := NewConsole(apiclient.New(backendURL), store, archive, ConsoleConfig{
		Session: session.Config{
			PollInterval:  5 * time.Millisecond,
			DebounceDelay: 20 * time.Millisecond,
			NotifyTTL:     time.Minute,
			MaxFileSize:   maxFileSize,
		},
		CookieName:    cookieName,
		ArchiveFormat: "txt",
	})
	t.Cleanup(h.Close)

	h.Mount(app.Group("/ui"))
	app.Get("/api/v1/transcribe/:id/download", h.ProxyDownload)
	app.Get("/platforms", h.Platforms)
	app.Get("/health", h.Health)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, cookie string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func sessionCookie(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie issued")
	return ""
}

// waitForEvent reads the event feed until an event of type want arrives
func waitForEvent(t *testing.T, app *fiber.App, cookie string, want events.Type) []events.Event {
	t.Helper()
	var (
		seen  []events.Event
		since int64
	)
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/ui/events?wait=1&since="+strconv.FormatInt(since, 10), nil)
		req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie})
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		var feed struct {
			Events  []events.Event `json:"events"`
			LastSeq int64          `json:"last_seq"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&feed)
		resp.Body.Close()

		for _, ev := range feed.Events {
			seen = append(seen, ev)
			since = ev.Seq
			if ev.Type == want {
				return seen
			}
		}
	}
	t.Fatalf("no %s event; saw %+v", want, seen)
	return nil
}

// TestSubmitURLToResult drives a URL submission through polling to the result.
func TestSubmitURLToResult(t *testing.T) {
	backend := newBackend(t)
	archive := &recordingArchiver{}
	store := storage.NewMemoryStore(0)
	app := newTestApp(t, backend.URL, store, archive)

	resp, body := doJSON(t, app, http.MethodPost, "/ui/url", "", map[string]string{"url": "https://youtu.be/x"})
	if resp.StatusCode != http.StatusOK || body["task_id"] != "t-1" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
	cookie := sessionCookie(t, resp)

	seen := waitForEvent(t, app, cookie, events.TypeResult)
	var progress, result bool
	for _, ev := range seen {
		switch ev.Type {
		case events.TypeProgress:
			progress = strings.Contains(string(ev.Data), `"percent":100`)
		case events.TypeResult:
			result = strings.Contains(string(ev.Data), "hello world")
		}
	}
	if !progress || !result {
		t.Fatalf("events = %+v", seen)
	}

	archived := func() bool {
		rec, err := store.LoadSession(context.Background(), cookie)
		return err == nil && rec.Archived
	}
	deadline := time.Now().Add(time.Second)
	for !archived() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if archive.count() != 1 || archive.jobs[0].Title != "Talk" {
		t.Fatalf("archived jobs = %+v", archive.jobs)
	}
	rec, err := store.LoadSession(context.Background(), cookie)
	if err != nil || rec.TaskID != "t-1" || !rec.Archived {
		t.Fatalf("session record = %+v, %v", rec, err)
	}

	_, dl := doJSON(t, app, http.MethodPost, "/ui/download", cookie, map[string]string{"url_format": "vtt"})
	if dl["url"] != "/api/v1/transcribe/t-1/download?format=vtt" {
		t.Fatalf("download = %v", dl)
	}

	_, state := doJSON(t, app, http.MethodPost, "/ui/reset", cookie, nil)
	if _, ok := state["task_id"]; ok || state["polling"] != false {
		t.Fatalf("state after reset = %v", state)
	}
	if _, err := store.LoadSession(context.Background(), cookie); err == nil {
		t.Fatal("reset should drop the session record")
	}
}

func TestSubmitURLBackendError(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	resp, body := doJSON(t, app, http.MethodPost, "/ui/url", "", map[string]string{"url": "https://unsupported.example/v"})
	if resp.StatusCode != http.StatusBadGateway || body["error"] != "Unsupported platform" || body["code"] != "ERR_BACKEND" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestLocalValidationErrors(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	tests := []struct {
		path string
		body any
	}{
		{"/ui/select", map[string]any{"name": "notes.txt", "size": 10, "type": "text/plain"}},
		{"/ui/url", map[string]string{"url": ""}},
		{"/ui/validate", map[string]string{"url": " "}},
		{"/ui/download", nil},
	}
	for _, tt := range tests {
		resp, body := doJSON(t, app, http.MethodPost, tt.path, "", tt.body)
		if resp.StatusCode != http.StatusBadRequest || body["code"] != "ERR_VALIDATION" {
			t.Errorf("%s: status = %d body = %v", tt.path, resp.StatusCode, body)
		}
	}
}

func TestSelectFile(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	resp, body := doJSON(t, app, http.MethodPost, "/ui/select", "", map[string]any{"name": "clip.mkv", "size": 1048576})
	if resp.StatusCode != http.StatusOK || body["size"] != "1 MB" || body["name"] != "clip.mkv" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestUploadMultipart(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "clip.mp4")
	_, _ = fw.Write([]byte("video-bytes"))
	_ = mw.WriteField("output_format", "vtt")
	_ = mw.WriteField("include_timestamps", "on")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ui/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var state session.State
	_ = json.NewDecoder(resp.Body).Decode(&state)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || state.TaskID != "t-1" {
		t.Fatalf("status = %d state = %+v", resp.StatusCode, state)
	}
}

func uploadOfSize(t *testing.T, app *fiber.App, size int) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "clip.mp4")
	_, _ = fw.Write(bytes.Repeat([]byte{'v'}, size))
	_ = mw.WriteField("output_format", "txt")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ui/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

// TestUploadCeiling checks a file exactly at the limit is accepted despite
// multipart framing, and one byte more is rejected with the local message.
func TestUploadCeiling(t *testing.T) {
	const limit = 1 << 20
	backend := newBackend(t).URL
	app := newTestAppWithLimit(t, backend, storage.NewMemoryStore(0), nil, limit, fiber.New(AppConfig(limit)))

	resp, body := uploadOfSize(t, app, limit)
	if resp.StatusCode != http.StatusOK || body["task_id"] != "t-1" {
		t.Fatalf("at ceiling: status = %d body = %v", resp.StatusCode, body)
	}

	resp, body = uploadOfSize(t, app, limit+1)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "ERR_VALIDATION" ||
		body["error"] != "File is too large. Maximum size: 1 MB" {
		t.Fatalf("over ceiling: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestAppConfig(t *testing.T) {
	cfg := AppConfig(0)
	if !cfg.StreamRequestBody || int64(cfg.BodyLimit) <= intake.MaxFileSize {
		t.Fatalf("AppConfig(0) = stream %v, limit %d", cfg.StreamRequestBody, cfg.BodyLimit)
	}

	app := fiber.New(AppConfig(1 << 20))
	app.Post("/big", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/missing", func(c *fiber.Ctx) error { return fiber.ErrNotFound })

	resp, body := doJSON(t, app, http.MethodPost, "/big", "", nil)
	if resp.StatusCode != http.StatusRequestEntityTooLarge || body["code"] != "ERR_VALIDATION" ||
		body["error"] != "File is too large. Maximum size: 1 MB" {
		t.Fatalf("413: status = %d body = %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, app, http.MethodGet, "/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("404 passthrough: status = %d", resp.StatusCode)
	}
}

func TestTasksListAndDelete(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	resp, body := doJSON(t, app, http.MethodGet, "/ui/tasks?skip=5&limit=500&status=completed", "", nil)
	if resp.StatusCode != http.StatusOK || body["total"] != float64(6) {
		t.Fatalf("list: status = %d body = %v", resp.StatusCode, body)
	}

	resp, state := doJSON(t, app, http.MethodPost, "/ui/url", "", map[string]string{"url": "https://youtube.com/watch?v=1"})
	if resp.StatusCode != http.StatusOK || state["task_id"] != "t-1" {
		t.Fatalf("submit: status = %d body = %v", resp.StatusCode, state)
	}
	id := sessionCookie(t, resp)

	resp, body = doJSON(t, app, http.MethodDelete, "/ui/tasks/t-1", id, nil)
	if resp.StatusCode != http.StatusOK || body["task_id"] != "t-1" {
		t.Fatalf("delete: status = %d body = %v", resp.StatusCode, body)
	}
	_, state = doJSON(t, app, http.MethodGet, "/ui/state", id, nil)
	if _, ok := state["task_id"]; ok {
		t.Fatalf("session still follows the deleted task: %v", state)
	}

	resp, body = doJSON(t, app, http.MethodDelete, "/ui/tasks/missing", id, nil)
	if resp.StatusCode != http.StatusBadGateway || body["error"] != "Task not found" {
		t.Fatalf("delete missing: status = %d body = %v", resp.StatusCode, body)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)
	resp, body := doJSON(t, app, http.MethodPost, "/ui/upload", "", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "ERR_NO_FILE" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

// TestResumeFromStore verifies a stored task is picked up for a known cookie.
func TestResumeFromStore(t *testing.T) {
	store := storage.NewMemoryStore(0)
	id := uuid.New().String()
	if err := store.SaveSession(context.Background(), storage.SessionRecord{ID: id, TaskID: "t-1"}); err != nil {
		t.Fatal(err)
	}
	app := newTestApp(t, newBackend(t).URL, store, nil)

	resp, state := doJSON(t, app, http.MethodGet, "/ui/state", id, nil)
	if state["task_id"] != "t-1" || state["session_id"] != id {
		t.Fatalf("state = %v", state)
	}
	if sessionCookie(t, resp) != id {
		t.Fatal("known cookie should be kept")
	}
	waitForEvent(t, app, id, events.TypeResult)
}

func TestProxyDownload(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transcribe/t-1/download?format=vtt", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(data), "WEBVTT") {
		t.Fatalf("status = %d body = %q", resp.StatusCode, data)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "transcription_t-1.vtt") {
		t.Fatalf("content disposition = %q", cd)
	}

	resp, body := doJSON(t, app, http.MethodGet, "/api/v1/transcribe/t-1/download?format=exe", "", nil)
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "ERR_INVALID_FORMAT" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestPlatformsAndHealth(t *testing.T) {
	app := newTestApp(t, newBackend(t).URL, storage.NewMemoryStore(0), nil)

	_, body := doJSON(t, app, http.MethodGet, "/platforms", "", nil)
	platforms, _ := body["platforms"].([]any)
	if len(platforms) != 1 {
		t.Fatalf("platforms = %v", body)
	}

	_, health := doJSON(t, app, http.MethodGet, "/health", "", nil)
	if health["status"] != "healthy" || health["backend"] != "healthy" {
		t.Fatalf("health = %v", health)
	}
}

func TestRateLimit(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimit(1, 1))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	first, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	second, _ := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if first.StatusCode != http.StatusOK || second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("statuses = %d, %d", first.StatusCode, second.StatusCode)
	}
}

type fakeHistory struct {
	records map[string]storage.Record
}

func (f *fakeHistory) ListTranscripts(ctx context.Context, limit int) ([]storage.Record, error) {
	out := []storage.Record{}
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHistory) GetTranscript(ctx context.Context, taskID string) (storage.Record, error) {
	r, ok := f.records[taskID]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return r, nil
}

func TestHistoryRoutes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte("archived text"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := NewHistoryHandler(&fakeHistory{records: map[string]storage.Record{
		"a": {TaskID: "a", Title: "Talk", LocalPath: path},
	}})
	app := fiber.New()
	app.Get("/history", h.List)
	app.Get("/history/:id", h.Get)
	app.Get("/history/:id/text", h.Text)

	resp, body := doJSON(t, app, http.MethodGet, "/history/a", "", nil)
	if resp.StatusCode != http.StatusOK || body["title"] != "Talk" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/history/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status = %d", resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/history/a/text", nil))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	if string(data) != "archived text" {
		t.Fatalf("text = %q", data)
	}
}
