// Package apiclient talks to the transcription backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// DefaultPrefix is the API base path on the backend
const DefaultPrefix = "/api/v1"

// Operation names, used for generic error messages
const (
	OpFileUpload   = "file upload"
	OpCreateTask   = "task creation"
	OpValidateURL  = "URL validation"
	OpStatus       = "status check"
	OpResult       = "result fetch"
	OpDownload     = "download"
	OpPlatforms    = "platform listing"
	OpListTasks    = "task listing"
	OpDeleteTask   = "task deletion"
	OpHealth       = "health check"
	maxErrorBodyKB = 64
)

// Client is a backend API client
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPrefix replaces the /api/v1 base path
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
		if c.prefix == "/" {
			c.prefix = ""
		}
	}
}

// New creates a client for the backend at baseURL (scheme and host, e.g.
// http://localhost:8000). An empty baseURL yields same-origin paths.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  DefaultPrefix,
		// no overall timeout: uploads of up to 2 GB must not be cut off
		httpClient: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend origin the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + c.prefix + path
}

func taskPath(taskID, suffix string) string {
	return "/transcribe/" + url.PathEscape(taskID) + suffix
}

// DownloadPath returns the same-origin path of a task's artifact
func (c *Client) DownloadPath(taskID, format string) string {
	q := url.Values{"format": {format}}
	return c.prefix + taskPath(taskID, "/download") + "?" + q.Encode()
}

// DownloadURL returns the absolute URL of a task's artifact
func (c *Client) DownloadURL(taskID, format string) string {
	return c.baseURL + c.DownloadPath(taskID, format)
}

// SubmitFile uploads a video as multipart form data (POST /transcribe/).
// The body is streamed, so the file is never held in memory.
func (c *Client) SubmitFile(ctx context.Context, up *types.FileUpload) (*types.TaskCreated, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUpload(mw, up)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/transcribe/"), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, &types.RequestError{Op: OpFileUpload, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var created types.TaskCreated
	if err := c.send(OpFileUpload, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeUpload(mw *multipart.Writer, up *types.FileUpload) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(up.Name)))
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, up.Body); err != nil {
		return fmt.Errorf("stream file: %w", err)
	}

	opts := up.Options
	fields := [][2]string{
		{"language", opts.Language},
		{"output_format", opts.OutputFormat},
		{"include_timestamps", strconv.FormatBool(opts.IncludeTimestamps)},
	}
	if opts.MaxLineLength > 0 {
		fields = append(fields, [2]string{"max_line_length", strconv.Itoa(opts.MaxLineLength)})
	}
	if opts.MaxSubtitleDuration > 0 {
		fields = append(fields, [2]string{"max_subtitle_duration", strconv.Itoa(opts.MaxSubtitleDuration)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}

// SubmitURL creates a task for a video link (POST /transcribe/url)
func (c *Client) SubmitURL(ctx context.Context, body types.URLRequest) (*types.TaskCreated, error) {
	var created types.TaskCreated
	if err := c.doJSON(ctx, OpCreateTask, http.MethodPost, "/transcribe/url", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ValidateURL asks the backend whether a link is supported (POST /platforms/validate)
func (c *Client) ValidateURL(ctx context.Context, rawURL string) (*types.URLValidation, error) {
	var v types.URLValidation
	body := map[string]string{"url": rawURL}
	if err := c.doJSON(ctx, OpValidateURL, http.MethodPost, "/platforms/validate", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Status fetches the short status of a task
func (c *Client) Status(ctx context.Context, taskID string) (*types.TaskStatus, error) {
	var st types.TaskStatus
	if err := c.doJSON(ctx, OpStatus, http.MethodGet, taskPath(taskID, "/status"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Result fetches the final artifact of a completed task
func (c *Client) Result(ctx context.Context, taskID string) (*types.TaskResult, error) {
	var res types.TaskResult
	if err := c.doJSON(ctx, OpResult, http.MethodGet, taskPath(taskID, "/result"), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Download opens the artifact stream of a task. The caller closes the reader.
func (c *Client) Download(ctx context.Context, taskID, format string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(taskID, format), nil)
	if err != nil {
		return nil, "", &types.RequestError{Op: OpDownload, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &types.RequestError{Op: OpDownload, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, "", decodeError(OpDownload, resp)
	}

	filename := fmt.Sprintf("transcription_%s.%s", taskID, format)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	return resp.Body, filename, nil
}

// SupportedPlatforms lists the platforms the backend can download from
func (c *Client) SupportedPlatforms(ctx context.Context) ([]types.PlatformInfo, error) {
	var out struct {
		Platforms []types.PlatformInfo `json:"platforms"`
	}
	if err := c.doJSON(ctx, OpPlatforms, http.MethodGet, "/platforms/supported", nil, &out); err != nil {
		return nil, err
	}
	return out.Platforms, nil
}

// ListTasks pages through backend tasks, optionally filtered by status
func (c *Client) ListTasks(ctx context.Context, skip, limit int, status types.Status) (*types.TaskList, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", string(status))
	}

	var list types.TaskList
	if err := c.doJSON(ctx, OpListTasks, http.MethodGet, "/transcribe/?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// DeleteTask removes a task and its files on the backend
func (c *Client) DeleteTask(ctx context.Context, taskID string) error {
	return c.doJSON(ctx, OpDeleteTask, http.MethodDelete, taskPath(taskID, ""), nil, nil)
}

// Health checks backend liveness
func (c *Client) Health(ctx context.Context) (*types.Health, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var h types.Health
	if err := c.doJSON(ctx, OpHealth, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &types.RequestError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), rdr)
	if err != nil {
		return &types.RequestError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.send(op, req, out)
}

func (c *Client) send(op string, req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &types.RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &types.RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeError extracts the "detail" string of an error body. FastAPI sends a
// list for request validation errors; those keep the generic message.
func decodeError(op string, resp *http.Response) error {
	reqErr := &types.RequestError{Op: op, StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyKB<<10))
	if err != nil {
		return reqErr
	}
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(data, &body) != nil || len(body.Detail) == 0 {
		return reqErr
	}
	var detail string
	if json.Unmarshal(body.Detail, &detail) == nil {
		reqErr.Detail = detail
	}
	return reqErr
}
