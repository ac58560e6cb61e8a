package session

import (
	"html/template"

	"github.com/codebuildervaibhav/video-transcriber/internal/notify"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
)

// Control identifies an action button whose loading state the view manages
type Control string

const (
	ControlUpload    Control = "uploadBtn"
	ControlURLUpload Control = "urlUploadBtn"
	ControlValidate  Control = "validateBtn"
)

var controlLabels = map[Control]string{
	ControlUpload:    "Start transcription",
	ControlURLUpload: "Download and transcribe",
	ControlValidate:  "Check link",
}

// LoadingLabel is shown on a control while its request is in flight
const LoadingLabel = "Loading..."

// Label returns the idle caption of a control
func (c Control) Label() string {
	return controlLabels[c]
}

// Sections says which result areas of the page are visible
type Sections struct {
	Progress bool `json:"progress"`
	Results  bool `json:"results"`
}

// View is the UI adapter a session drives. Implementations must not call
// back into the session from these methods.
type View interface {
	notify.Sink

	SetLoading(c Control, loading bool)
	ShowFileInfo(info render.FileInfo)
	ShowValidation(panel template.HTML)
	ShowSections(s Sections)
	ShowProgress(p render.Progress)
	ShowResult(fragment template.HTML)
	StartDownload(url, filename string)
	ResetForms()
}
