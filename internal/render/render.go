// Package render turns backend payloads into the HTML fragments and view
// models the page displays.
package render

import (
	"bytes"
	"html/template"
	"math"
	"strconv"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// FileInfo is shown once a file passes local checks
type FileInfo struct {
	Name string `json:"name"`
	Size string `json:"size"`
}

// Stat is one cell of the result statistics strip
type Stat struct {
	Icon  string
	Label string
	Value string
}

const validationTmpl = `{{define "validation"}}
{{- if .IsValid -}}
<div class="alert alert-success"><i class="fas fa-check-circle me-2"></i><strong>URL is valid!</strong> Platform: {{or .Platform "Unknown"}}</div>
{{- with .Metadata}}
<div class="result-metadata">
<h6><i class="fas fa-info-circle me-2"></i>Video information</h6>
<div class="row">
<div class="col-md-6"><strong>Title:</strong> {{or .Title "Not specified"}}</div>
<div class="col-md-6"><strong>Duration:</strong> {{duration .Duration}}</div>
<div class="col-12"><strong>Platform:</strong> {{or .Platform "Unknown"}}</div>
</div>
</div>
{{- end}}
{{- else -}}
<div class="alert alert-danger"><i class="fas fa-exclamation-triangle me-2"></i><strong>Validation failed:</strong> {{or .Reason "URL invalid"}}</div>
{{- end}}
{{- end}}`

const resultTmpl = `{{define "result"}}
{{- with .Task.VideoMetadata}}
<div class="result-metadata">
<h6><i class="fas fa-video me-2"></i>Video information</h6>
<div class="row">
<div class="col-md-6"><strong>Title:</strong> {{or .Title "Not specified"}}</div>
<div class="col-md-6"><strong>Duration:</strong> {{duration .Duration}}</div>
<div class="col-md-6"><strong>Platform:</strong> {{or .Platform "File"}}</div>
<div class="col-md-6"><strong>Language:</strong> {{$.Language}}</div>
</div>
</div>
{{- end}}
{{- with .Task.Result}}
<div class="mb-3">
<h6><i class="fas fa-file-text me-2"></i>Transcript</h6>
<div class="result-text">{{.Text}}</div>
</div>
<div class="row text-center">
{{- range $.Stats}}
<div class="col-md-3"><div class="feature-item"><i class="fas fa-{{.Icon}}"></i><small>{{.Label}}<br>{{.Value}}</small></div></div>
{{- end}}
</div>
{{- end}}
{{- end}}`

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"duration": FormatDuration,
}).Parse(validationTmpl + resultTmpl))

// ValidationPanel renders the success or failure panel for a URL check
func ValidationPanel(v *types.URLValidation) (template.HTML, error) {
	return execute("validation", v)
}

// ResultFragment renders metadata, transcript and statistics of a finished task.
// Missing metadata or transcription simply omits that block.
func ResultFragment(task *types.TaskResult) (template.HTML, error) {
	language := "Unknown"
	if task.Result != nil && task.Result.Language != "" {
		language = task.Result.Language
	}

	return execute("result", struct {
		Task     *types.TaskResult
		Language string
		Stats    []Stat
	}{task, language, Stats(task.Result)})
}

// Stats builds the four-cell statistics strip
func Stats(r *types.Transcription) []Stat {
	if r == nil {
		return nil
	}
	return []Stat{
		{Icon: "clock text-primary", Label: "Processing time", Value: formatSeconds(r.ProcessingTime)},
		{Icon: "percentage text-success", Label: "Confidence", Value: strconv.Itoa(int(math.Round(r.Confidence*100))) + "%"},
		{Icon: "list text-info", Label: "Segments", Value: strconv.Itoa(len(r.Segments))},
		{Icon: "language text-warning", Label: "Language", Value: r.Language},
	}
}

func execute(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
