// Package intake performs the local checks on a selected file or a URL form
// before anything is sent to the backend.
package intake

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// MaxFileSize is the hard upload ceiling (2 GiB)
const MaxFileSize int64 = 2 * 1024 * 1024 * 1024

var allowedTypes = []string{
	"video/mp4", "video/avi", "video/quicktime",
	"video/x-msvideo", "video/x-ms-wmv", "video/x-flv", "video/webm",
}

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm"}

// FileSelection describes a file the user picked, before upload
type FileSelection struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"type"`
}

// URLForm mirrors the fields of the URL submission form
type URLForm struct {
	URL               string `json:"url" form:"url"`
	Language          string `json:"language" form:"language"`
	OutputFormat      string `json:"output_format" form:"output_format"`
	IncludeTimestamps string `json:"include_timestamps" form:"include_timestamps"`
	Quality           string `json:"quality" form:"quality"`
}

// CheckFile validates type and size of a selected file against MaxFileSize
func CheckFile(f FileSelection) error {
	return CheckFileLimit(f, MaxFileSize)
}

// CheckFileLimit is CheckFile with a custom ceiling; maxSize <= 0 means
// MaxFileSize.
func CheckFileLimit(f FileSelection, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if f.Name == "" {
		return types.NewValidationError("Select a file to upload")
	}
	if !isAllowedType(f.ContentType) && !IsVideoFile(f.Name) {
		return types.NewValidationError("Unsupported file format. Please upload a video file.")
	}
	if f.Size > maxSize {
		return TooLarge(maxSize)
	}
	return nil
}

// TooLarge is the error shown for a file above maxSize
func TooLarge(maxSize int64) *types.ValidationError {
	return types.NewValidationError("File is too large. Maximum size: %s", sizeLabel(maxSize))
}

func sizeLabel(n int64) string {
	const gb, mb = 1 << 30, 1 << 20
	if n%gb == 0 {
		return fmt.Sprintf("%d GB", n/gb)
	}
	return fmt.Sprintf("%d MB", n/mb)
}

// IsVideoFile checks the filename against the known video extensions
func IsVideoFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range videoExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isAllowedType(contentType string) bool {
	// browsers and sniffers may append parameters, e.g. "video/mp4; codecs=..."
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	for _, t := range allowedTypes {
		if strings.EqualFold(mediaType, t) {
			return true
		}
	}
	return false
}

// IsWellFormedURL reports whether raw parses with both a scheme and an authority
func IsWellFormedURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// URLRequestFromForm builds the JSON body for a URL submission
func URLRequestFromForm(form URLForm) (types.URLRequest, error) {
	raw := strings.TrimSpace(form.URL)
	if raw == "" {
		return types.URLRequest{}, types.NewValidationError("Enter a video URL")
	}
	if !IsWellFormedURL(raw) {
		return types.URLRequest{}, types.NewValidationError("Malformed URL: %s", raw)
	}

	return types.URLRequest{
		URL:               raw,
		Language:          orDefault(form.Language, types.DefaultLanguage),
		OutputFormat:      orDefault(form.OutputFormat, types.DefaultFormat),
		IncludeTimestamps: form.IncludeTimestamps == "on",
		Quality:           orDefault(form.Quality, types.DefaultQuality),
	}, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
