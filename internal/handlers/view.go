package handlers

import (
	"html/template"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/events"
	"github.com/codebuildervaibhav/video-transcriber/internal/notify"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
)

// webView turns session view calls into events for the page
type webView struct {
	bus *events.Bus
	log *logrus.Entry
}

func newWebView(bus *events.Bus, log *logrus.Entry) *webView {
	return &webView{bus: bus, log: log}
}

type loadingPayload struct {
	Control session.Control `json:"control"`
	Loading bool            `json:"loading"`
	Label   string          `json:"label"`
}

type htmlPayload struct {
	HTML template.HTML `json:"html"`
}

type downloadPayload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type dismissPayload struct {
	ID string `json:"id"`
}

func (v *webView) publish(t events.Type, payload any) {
	if _, err := v.bus.Publish(t, payload); err != nil {
		v.log.WithError(err).WithField("event", t).Error("Publish view event")
	}
}

func (v *webView) SetLoading(c session.Control, loading bool) {
	label := c.Label()
	if loading {
		label = session.LoadingLabel
	}
	v.publish(events.TypeLoading, loadingPayload{Control: c, Loading: loading, Label: label})
}

func (v *webView) ShowFileInfo(info render.FileInfo) {
	v.publish(events.TypeFileInfo, info)
}

func (v *webView) ShowValidation(panel template.HTML) {
	v.publish(events.TypeValidation, htmlPayload{HTML: panel})
}

func (v *webView) ShowSections(s session.Sections) {
	v.publish(events.TypeSections, s)
}

func (v *webView) ShowProgress(p render.Progress) {
	v.publish(events.TypeProgress, p)
}

func (v *webView) ShowResult(fragment template.HTML) {
	v.publish(events.TypeResult, htmlPayload{HTML: fragment})
}

func (v *webView) StartDownload(url, filename string) {
	v.publish(events.TypeDownload, downloadPayload{URL: url, Filename: filename})
}

func (v *webView) ResetForms() {
	v.publish(events.TypeResetForms, nil)
}

func (v *webView) Notify(n notify.Notification) {
	v.publish(events.TypeNotify, n)
}

func (v *webView) Dismiss(id string) {
	v.publish(events.TypeDismiss, dismissPayload{ID: id})
}
