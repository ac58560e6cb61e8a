// Command transcribe submits a video file or link to the transcription
// backend, follows the job and archives the finished transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"github.com/wailsapp/mimetype"

	"github.com/codebuildervaibhav/video-transcriber/internal/apiclient"
	"github.com/codebuildervaibhav/video-transcriber/internal/config"
	"github.com/codebuildervaibhav/video-transcriber/internal/intake"
	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/session"
	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

type options struct {
	API          string        `long:"api" default:"http://localhost:8000" description:"Backend base URL"`
	File         string        `short:"f" long:"file" description:"Video file to upload"`
	URL          string        `short:"u" long:"url" description:"Video link to download and transcribe"`
	Language     string        `long:"language" default:"auto" description:"Spoken language (auto, en, ru)"`
	Format       string        `long:"format" default:"srt" choice:"txt" choice:"srt" choice:"vtt" choice:"json" choice:"docx" description:"Output format"`
	Timestamps   bool          `long:"timestamps" description:"Include timestamps in the transcript"`
	Quality      string        `long:"quality" default:"720p" description:"Download quality for links"`
	ValidateOnly bool          `long:"validate-only" description:"Only check whether the link is supported"`
	Out          string        `long:"out" default:"outputs" description:"Archive directory"`
	Drive        bool          `long:"drive" description:"Also upload the transcript to Google Drive"`
	ConfigPath   string        `short:"c" long:"config" default:"config/config.yaml" description:"Config file with Google Drive settings"`
	Interval     time.Duration `long:"interval" default:"2s" description:"Status poll interval"`
	Verbose      bool          `short:"v" long:"verbose" description:"Debug logging"`
}

func (o *options) check() error {
	switch {
	case o.File == "" && o.URL == "":
		return errors.New("one of --file or --url is required")
	case o.File != "" && o.URL != "":
		return errors.New("--file and --url are mutually exclusive")
	case o.ValidateOnly && o.URL == "":
		return errors.New("--validate-only needs --url")
	}
	return nil
}

// outcome is what the poll loop reports once the job is terminal
type outcome struct {
	result *types.TaskResult
	err    error
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if err := opts.check(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.SetLevel(log.WarnLevel)
	if opts.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	client := apiclient.New(opts.API)

	if opts.ValidateOnly {
		return validate(ctx, client, opts.URL, out)
	}

	done := make(chan outcome, 1)
	view := newTerminalView(out)
	out = view
	sess := session.New("cli", client, view, session.Config{PollInterval: opts.Interval}, session.Hooks{
		Completed:    func(taskID string, res *types.TaskResult) { done <- outcome{result: res} },
		Failed:       func(f *types.JobFailure) { done <- outcome{err: f} },
		ResultFailed: func(taskID string, err error) { done <- outcome{err: fmt.Errorf("task %s: %w", taskID, err)} },
	})
	defer sess.Close()

	if err := submit(ctx, sess, opts); err != nil {
		return err
	}
	fmt.Fprintf(out, "Task %s created\n", sess.TaskID())

	var res *types.TaskResult
	select {
	case o := <-done:
		if o.err != nil {
			return o.err
		}
		res = o.result
	case <-ctx.Done():
		return ctx.Err()
	}

	printResult(out, res)
	return archive(ctx, client, sess, view, opts, res, out)
}

func submit(ctx context.Context, sess *session.Session, opts options) error {
	if opts.URL != "" {
		ts := ""
		if opts.Timestamps {
			ts = "on"
		}
		return sess.SubmitURL(ctx, intake.URLForm{
			URL:               opts.URL,
			Language:          opts.Language,
			OutputFormat:      opts.Format,
			IncludeTimestamps: ts,
			Quality:           opts.Quality,
		})
	}

	up, closeFile, err := openUpload(opts)
	if err != nil {
		return err
	}
	defer closeFile()

	if err := sess.SelectFile(intake.FileSelection{Name: up.Name, Size: up.Size, ContentType: up.ContentType}); err != nil {
		return err
	}
	return sess.SubmitFile(ctx, up)
}

// openUpload opens the file and sniffs its content type from the bytes
func openUpload(opts options) (*types.FileUpload, func(), error) {
	f, err := os.Open(opts.File)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	contentType := "application/octet-stream"
	if m, err := mimetype.DetectReader(f); err == nil {
		contentType = m.String()
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, nil, err
	}

	return &types.FileUpload{
		Name:        filepath.Base(opts.File),
		Size:        info.Size(),
		ContentType: contentType,
		Body:        f,
		Options: types.UploadOptions{
			Language:          opts.Language,
			OutputFormat:      opts.Format,
			IncludeTimestamps: opts.Timestamps,
		},
	}, func() { f.Close() }, nil
}

func validate(ctx context.Context, client *apiclient.Client, rawURL string, out io.Writer) error {
	v, err := client.ValidateURL(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}
	if !v.IsValid {
		reason := v.Reason
		if reason == "" {
			reason = "URL invalid"
		}
		return fmt.Errorf("link not supported: %s", reason)
	}

	fmt.Fprintf(out, "Supported (%s)\n", v.Platform)
	if m := v.Metadata; m != nil {
		if m.Title != "" {
			fmt.Fprintf(out, "Title:    %s\n", m.Title)
		}
		fmt.Fprintf(out, "Duration: %s\n", render.FormatDuration(m.Duration))
	}
	return nil
}

func printResult(out io.Writer, res *types.TaskResult) {
	if m := res.VideoMetadata; m != nil && m.Title != "" {
		fmt.Fprintf(out, "\n%s (%s)\n", m.Title, render.FormatDuration(m.Duration))
	}
	if res.Result == nil {
		return
	}
	fmt.Fprintf(out, "\n%s\n\n", res.Result.Text)
	for _, s := range render.Stats(res.Result) {
		fmt.Fprintf(out, "%-16s %s\n", s.Label+":", s.Value)
	}
}

// archive downloads the artifact into the dated local archive and, with
// --drive, copies it to Google Drive.
func archive(ctx context.Context, client *apiclient.Client, sess *session.Session, view *terminalView,
	opts options, res *types.TaskResult, out io.Writer) error {
	if _, err := sess.Download(opts.Format, ""); err != nil {
		return err
	}

	body, _, err := client.Download(ctx, res.TaskID, opts.Format)
	if err != nil {
		return err
	}
	defer body.Close()

	name := strings.TrimSuffix(view.downloadName(), "."+opts.Format)
	if m := res.VideoMetadata; m != nil && m.Title != "" {
		name = m.Title
	}

	var content strings.Builder
	local := storage.NewLocalStorage(opts.Out)
	path, err := local.SaveArtifact(name, opts.Format, io.TeeReader(body, &content), map[string]any{
		"task_id": res.TaskID,
		"format":  opts.Format,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %s\n", path)

	if !opts.Drive {
		return nil
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	dc, err := storage.NewDriveClient(ctx, storage.DriveConfig{
		CredentialsFile: cfg.GoogleDrive.CredentialsFile,
		TokenFile:       cfg.GoogleDrive.TokenFile,
		FolderName:      cfg.GoogleDrive.FolderName,
		Interactive:     true,
	})
	if err != nil {
		return fmt.Errorf("google drive: %w", err)
	}
	link, err := dc.Upload(ctx, name, opts.Format, strings.NewReader(content.String()), nil)
	if err != nil {
		return fmt.Errorf("google drive: %w", err)
	}
	fmt.Fprintf(out, "Uploaded %s\n", link)
	return nil
}
