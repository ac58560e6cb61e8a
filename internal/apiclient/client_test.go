package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestDownloadPath(t *testing.T) {
	c := New("")
	if got := c.DownloadPath("abc", "vtt"); got != "/api/v1/transcribe/abc/download?format=vtt" {
		t.Fatalf("DownloadPath() = %q", got)
	}
	c = New("http://backend:8000/", WithPrefix("v2/"))
	if got := c.DownloadURL("a b", "srt"); got != "http://backend:8000/v2/transcribe/a%20b/download?format=srt" {
		t.Fatalf("DownloadURL() = %q", got)
	}
}

func TestSubmitFileSendsMultipart(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/transcribe/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if hdr.Filename != `my "clip".mp4` || string(data) != "video-bytes" {
			t.Errorf("file = %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "video/mp4" {
			t.Errorf("part content type = %q", ct)
		}
		if r.FormValue("output_format") != "vtt" || r.FormValue("include_timestamps") != "true" || r.FormValue("language") != "en" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		if _, ok := r.MultipartForm.Value["max_line_length"]; ok {
			t.Error("zero max_line_length should be omitted")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "t-1", "status": "pending"})
	})

	created, err := c.SubmitFile(context.Background(), &types.FileUpload{
		Name:        `my "clip".mp4`,
		ContentType: "video/mp4",
		Body:        strings.NewReader("video-bytes"),
		Options:     types.UploadOptions{Language: "en", OutputFormat: "vtt", IncludeTimestamps: true},
	})
	if err != nil {
		t.Fatalf("SubmitFile() error = %v", err)
	}
	if created.TaskID != "t-1" || created.Status != types.StatusPending {
		t.Fatalf("created = %+v", created)
	}
}

func TestSubmitURLErrorDetail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body types.URLRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body.URL != "https://vk.com/video1" || !body.IncludeTimestamps || body.Quality != "1080p" {
			t.Errorf("body = %+v", body)
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Unsupported platform"}`))
	})

	_, err := c.SubmitURL(context.Background(), types.URLRequest{
		URL: "https://vk.com/video1", IncludeTimestamps: true, Quality: "1080p",
	})
	var reqErr *types.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want RequestError", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest || reqErr.Error() != "Unsupported platform" {
		t.Fatalf("request error = %+v", reqErr)
	}
}

func TestErrorWithoutStringDetailFallsBack(t *testing.T) {
	for _, body := range []string{`{"detail":[{"loc":["body","url"],"msg":"invalid"}]}`, `not json`, `{}`} {
		c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(body))
		})
		_, err := c.Status(context.Background(), "x")
		if err == nil || err.Error() != "status check failed (HTTP 422)" {
			t.Errorf("body %s: error = %v", body, err)
		}
	}
}

func TestValidateStatusAndResult(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/platforms/validate":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["url"] != "https://youtu.be/x" {
				t.Errorf("validate body = %v", body)
			}
			_, _ = w.Write([]byte(`{"is_valid":true,"platform":"youtube","metadata":{"title":"T","duration":65}}`))
		case "/api/v1/transcribe/t-1/status":
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"transcribing","progress":42.4,"message":null}`))
		case "/api/v1/transcribe/t-1/result":
			_, _ = w.Write([]byte(`{"task_id":"t-1","status":"completed","created_at":"2024-05-01T10:00:00.123456",
				"result":{"text":"hi","language":"en","confidence":null,"processing_time":3.2,"segments":[{"start":0,"end":1,"text":"hi"}]}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	v, err := c.ValidateURL(ctx, "https://youtu.be/x")
	if err != nil || !v.IsValid || v.Platform != "youtube" || v.Metadata.Duration != 65 {
		t.Fatalf("ValidateURL() = %+v, %v", v, err)
	}

	st, err := c.Status(ctx, "t-1")
	if err != nil || st.Status != types.StatusTranscribing || st.Progress != 42.4 || st.Message != "" {
		t.Fatalf("Status() = %+v, %v", st, err)
	}

	res, err := c.Result(ctx, "t-1")
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if res.Result == nil || len(res.Result.Segments) != 1 || res.Result.Confidence != 0 || res.VideoMetadata != nil {
		t.Fatalf("Result() = %+v", res)
	}
}

func TestDownloadUsesContentDisposition(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "txt" {
			t.Errorf("format = %q", r.URL.Query().Get("format"))
		}
		w.Header().Set("Content-Disposition", `attachment; filename="transcription_t-1.txt"`)
		_, _ = w.Write([]byte("plain transcript"))
	})

	rc, name, err := c.Download(context.Background(), "t-1", "txt")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if name != "transcription_t-1.txt" || string(data) != "plain transcript" {
		t.Fatalf("download = %q %q", name, data)
	}
}

func TestTransportErrorIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Status(context.Background(), "x")
	var reqErr *types.RequestError
	if !errors.As(err, &reqErr) || reqErr.Err == nil {
		t.Fatalf("error = %#v, want transport RequestError", err)
	}
}

func TestListAndDelete(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/transcribe/":
			if r.URL.Query().Get("status") != "completed" || r.URL.Query().Get("limit") != "10" {
				t.Errorf("query = %v", r.URL.Query())
			}
			_, _ = w.Write([]byte(`{"tasks":[{"task_id":"a","status":"completed"}],"total":1,"skip":0,"limit":10}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/transcribe/a":
			_, _ = w.Write([]byte(`{"message":"deleted"}`))
		default:
			http.NotFound(w, r)
		}
	})

	list, err := c.ListTasks(context.Background(), 0, 10, types.StatusCompleted)
	if err != nil || list.Total != 1 || list.Tasks[0].TaskID != "a" {
		t.Fatalf("ListTasks() = %+v, %v", list, err)
	}
	if err := c.DeleteTask(context.Background(), "a"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
}
