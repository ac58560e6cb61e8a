package queue

import (
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Job is the archival of one completed transcription task
type Job struct {
	TaskID     string
	Title      string
	SourceType string
	Platform   string
	Language   string
	Format     string
	Duration   float64
	WordCount  int
	Status     types.Status
	Error      error
	LocalPath  string
	DriveURL   string
	CreatedAt  time.Time
}

// NewJob builds an archive job from a completed task result
func NewJob(res *types.TaskResult, format string) *Job {
	if format == "" {
		format = types.FormatTXT
	}

	job := &Job{
		TaskID:     res.TaskID,
		Title:      "transcription_" + res.TaskID,
		SourceType: res.SourceType,
		Format:     format,
		Status:     types.StatusQueued,
		CreatedAt:  time.Now(),
	}
	if job.SourceType == "" {
		job.SourceType = types.SourceURL
	}
	if m := res.VideoMetadata; m != nil {
		if m.Title != "" {
			job.Title = m.Title
		}
		job.Platform = m.Platform
		job.Duration = m.Duration
	}
	if r := res.Result; r != nil {
		job.Language = r.Language
		job.WordCount = len(strings.Fields(r.Text))
	}
	return job
}

// metadata is the sidecar written next to the artifact
func (j *Job) metadata() map[string]any {
	return map[string]any{
		"task_id":          j.TaskID,
		"title":            j.Title,
		"source_type":      j.SourceType,
		"platform":         j.Platform,
		"language":         j.Language,
		"format":           j.Format,
		"duration_seconds": j.Duration,
		"word_count":       j.WordCount,
		"created_at":       j.CreatedAt,
	}
}
