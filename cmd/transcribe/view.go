package main

import (
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/codebuildervaibhav/video-transcriber/internal/notify"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
)

// terminalView prints session updates as lines of text
type terminalView struct {
	mu       sync.Mutex
	out      io.Writer
	last     render.Progress
	download string
}

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{out: out}
}

// Write lets callers share the view's output without interleaving
func (v *terminalView) Write(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.out.Write(p)
}

func (v *terminalView) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *terminalView) SetLoading(c session.Control, loading bool) {}

func (v *terminalView) ShowFileInfo(info render.FileInfo) {
	v.printf("File: %s (%s)\n", info.Name, info.Size)
}

func (v *terminalView) ShowValidation(panel template.HTML) {}

func (v *terminalView) ShowSections(s session.Sections) {}

// ShowProgress prints only changes, so a long wait is not a wall of lines
func (v *terminalView) ShowProgress(p render.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p.Status == v.last.Status && p.Percent == v.last.Percent {
		return
	}
	v.last = p
	fmt.Fprintf(v.out, "[%-12s] %3d%% %s\n", p.Status, p.Percent, p.Label)
}

func (v *terminalView) ShowResult(fragment template.HTML) {}

func (v *terminalView) StartDownload(url, filename string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.download = filename
}

func (v *terminalView) downloadName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.download
}

func (v *terminalView) ResetForms() {}

func (v *terminalView) Notify(n notify.Notification) {
	if n.Level == notify.LevelInfo {
		return
	}
	v.printf("%s %s\n", levelMark[n.Level], n.Message)
}

func (v *terminalView) Dismiss(id string) {}

var levelMark = map[notify.Level]string{
	notify.LevelSuccess: "✔",
	notify.LevelError:   "✖",
	notify.LevelWarning: "!",
	notify.LevelInfo:    "i",
}
