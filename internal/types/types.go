package types

import "io"

// Status is the backend-reported job state
type Status string

// Job status constants
const (
	StatusPending      Status = "pending"
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether polling should stop at this status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Source type constants
const (
	SourceFile = "file"
	SourceURL  = "url"
)

// Output format constants
const (
	FormatTXT  = "txt"
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatJSON = "json"
	FormatDOCX = "docx"
)

// Defaults the backend applies to empty URL form fields
const (
	DefaultLanguage = "auto"
	DefaultFormat   = FormatSRT
	DefaultQuality  = "720p"
)

// UploadOptions are the form fields sent along with an uploaded file
type UploadOptions struct {
	Language            string
	OutputFormat        string
	IncludeTimestamps   bool
	MaxLineLength       int
	MaxSubtitleDuration int
}

// FileUpload is a multipart transcription request
type FileUpload struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
	Options     UploadOptions
}

// URLRequest is the JSON body for POST /transcribe/url
type URLRequest struct {
	URL               string `json:"url"`
	Language          string `json:"language"`
	OutputFormat      string `json:"output_format"`
	IncludeTimestamps bool   `json:"include_timestamps"`
	Quality           string `json:"quality"`
}

// TaskCreated is returned by both submission endpoints
type TaskCreated struct {
	TaskID  string `json:"task_id"`
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// TaskStatus is the short status returned by GET /transcribe/{id}/status
type TaskStatus struct {
	TaskID   string  `json:"task_id"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// VideoMetadata describes the source video of a task
type VideoMetadata struct {
	Title       string  `json:"title,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Description string  `json:"description,omitempty"`
	Platform    string  `json:"platform,omitempty"`
	OriginalURL string  `json:"original_url,omitempty"`
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Transcription is the final artifact of a completed task
type Transcription struct {
	Text           string    `json:"text"`
	Language       string    `json:"language"`
	Confidence     float64   `json:"confidence"`
	ProcessingTime float64   `json:"processing_time"`
	Segments       []Segment `json:"segments"`
}

// TaskResult is returned by GET /transcribe/{id}/result
type TaskResult struct {
	TaskID        string         `json:"task_id"`
	Status        Status         `json:"status"`
	SourceType    string         `json:"source_type,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	UpdatedAt     string         `json:"updated_at,omitempty"`
	Progress      float64        `json:"progress"`
	Message       string         `json:"message,omitempty"`
	Error         string         `json:"error,omitempty"`
	VideoMetadata *VideoMetadata `json:"video_metadata,omitempty"`
	Result        *Transcription `json:"result,omitempty"`
}

// URLValidation is returned by POST /platforms/validate
type URLValidation struct {
	IsValid  bool           `json:"is_valid"`
	Platform string         `json:"platform,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Metadata *VideoMetadata `json:"metadata,omitempty"`
}

// PlatformInfo describes one supported video platform
type PlatformInfo struct {
	Name             string   `json:"name"`
	Domains          []string `json:"domains"`
	SupportedFormats []string `json:"supported_formats"`
	MaxDuration      int      `json:"max_duration"`
	Features         []string `json:"features"`
}

// TaskList is returned by GET /transcribe/
type TaskList struct {
	Tasks []TaskResult `json:"tasks"`
	Total int          `json:"total"`
	Skip  int          `json:"skip"`
	Limit int          `json:"limit"`
}

// Health is returned by the backend health endpoint
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
