package render

import (
	"math"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Progress is the populated state of the progress bar
type Progress struct {
	TaskID   string       `json:"task_id"`
	Status   types.Status `json:"status"`
	Width    float64      `json:"width"`
	Percent  int          `json:"percent"`
	Label    string       `json:"label"`
	Color    string       `json:"color,omitempty"`
	Animated bool         `json:"animated"`
}

var statusColors = map[types.Status]string{
	types.StatusDownloading:  "info",
	types.StatusProcessing:   "warning",
	types.StatusTranscribing: "primary",
	types.StatusCompleted:    "success",
	types.StatusFailed:       "danger",
}

// StatusColor maps a status to its display colour; unknown states have none
func StatusColor(s types.Status) string {
	return statusColors[s]
}

// NewProgress converts a polled status into progress bar state
func NewProgress(st *types.TaskStatus) Progress {
	width := math.Max(0, math.Min(100, st.Progress))
	label := st.Message
	if label == "" {
		label = "Processing..."
	}

	return Progress{
		TaskID:   st.TaskID,
		Status:   st.Status,
		Width:    width,
		Percent:  int(math.Round(st.Progress)),
		Label:    label,
		Color:    StatusColor(st.Status),
		Animated: !st.Status.Terminal(),
	}
}
