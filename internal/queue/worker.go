// Package queue archives completed transcripts in the background: download
// from the backend, local copy, optional Google Drive upload, history row.
package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/storage"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

const driveAttempts = 3

// ErrQueueFull is returned when the job buffer is exhausted
var ErrQueueFull = errors.New("archive queue is full")

// ErrStopped is returned for jobs enqueued after Stop
var ErrStopped = errors.New("archive pool stopped")

// Downloader fetches a task artifact from the backend
type Downloader interface {
	Download(ctx context.Context, taskID, format string) (io.ReadCloser, string, error)
}

// LocalStore writes artifacts to disk
type LocalStore interface {
	SaveArtifact(name, format string, content io.Reader, meta any) (string, error)
}

// DriveUploader copies artifacts to Google Drive
type DriveUploader interface {
	Upload(ctx context.Context, name, format string, content io.Reader, meta any) (string, error)
}

// History records archived transcripts
type History interface {
	SaveTranscript(ctx context.Context, rec storage.Record) error
}

// WorkerPool manages a pool of workers archiving completed tasks
type WorkerPool struct {
	jobQueue     chan *Job
	workerCount  int
	downloader   Downloader
	localStorage LocalStore
	driveClient  DriveUploader
	db           History
	backoff      time.Duration
	log          *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewWorkerPool creates a pool; driveClient and db may be nil
func NewWorkerPool(
	workerCount, queueSize int,
	downloader Downloader,
	localStorage LocalStore,
	driveClient DriveUploader,
	db History,
) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:     make(chan *Job, queueSize),
		workerCount:  workerCount,
		downloader:   downloader,
		localStorage: localStorage,
		driveClient:  driveClient,
		db:           db,
		backoff:      time.Second,
		log:          logrus.WithField("component", "archive"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	wp.log.Infof("Starting worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// EnqueueJob adds a job to the queue without blocking
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return ErrStopped
	}

	job.Status = types.StatusQueued
	select {
	case wp.jobQueue <- job:
	default:
		return ErrQueueFull
	}
	wp.log.WithFields(logrus.Fields{"task_id": job.TaskID, "format": job.Format}).Info("Job enqueued")
	return nil
}

// Stop drains queued jobs and waits for the workers; a cancelled ctx aborts
// in-flight work instead.
func (wp *WorkerPool) Stop(ctx context.Context) {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobQueue)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		wp.cancel()
		<-done
	}
	wp.cancel()
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log := wp.log.WithField("worker", id)
	log.Debug("Worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("PANIC processing job %s: %v\n%s", job.TaskID, r, debug.Stack())
					job.Status = types.StatusFailed
					job.Error = fmt.Errorf("worker panic: %v", r)
				}
			}()

			wp.processJob(log, job)
		}()
	}
}

// processJob handles the complete archive pipeline
func (wp *WorkerPool) processJob(log *logrus.Entry, job *Job) {
	log = log.WithField("task_id", job.TaskID)
	log.Info("Archiving transcript")
	job.Status = types.StatusProcessing

	// Step 1: fetch the artifact
	body, _, err := wp.downloader.Download(wp.ctx, job.TaskID, job.Format)
	if err != nil {
		wp.fail(log, job, "download", err)
		return
	}
	content, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		wp.fail(log, job, "download", err)
		return
	}

	// Step 2: save locally
	meta := job.metadata()
	job.LocalPath, err = wp.localStorage.SaveArtifact(job.Title, job.Format, bytes.NewReader(content), meta)
	if err != nil {
		wp.fail(log, job, "local save", err)
		return
	}

	// Step 3: Google Drive, best effort
	if wp.driveClient != nil {
		job.DriveURL = wp.uploadWithRetry(log, job, content, meta)
	}

	// Step 4: history row
	if wp.db != nil {
		err = wp.db.SaveTranscript(wp.ctx, storage.Record{
			TaskID:     job.TaskID,
			Title:      job.Title,
			SourceType: job.SourceType,
			Platform:   job.Platform,
			Format:     job.Format,
			Language:   job.Language,
			LocalPath:  job.LocalPath,
			DriveURL:   job.DriveURL,
			Duration:   job.Duration,
			WordCount:  job.WordCount,
		})
		if err != nil {
			log.WithError(err).Error("Database save failed")
		}
	}

	job.Status = types.StatusCompleted
	log.WithFields(logrus.Fields{"local": job.LocalPath, "gdrive": job.DriveURL}).Info("Job archived")
}

// uploadWithRetry tries Drive up to three times with quadratic backoff and
// returns the link, or "" when every attempt failed.
func (wp *WorkerPool) uploadWithRetry(log *logrus.Entry, job *Job, content []byte, meta any) string {
	for attempt := 1; attempt <= driveAttempts; attempt++ {
		url, err := wp.driveClient.Upload(wp.ctx, job.Title, job.Format, bytes.NewReader(content), meta)
		if err == nil {
			return url
		}
		log.WithError(err).Warnf("Google Drive upload attempt %d/%d failed", attempt, driveAttempts)
		if attempt == driveAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt*attempt) * wp.backoff):
		case <-wp.ctx.Done():
			return ""
		}
	}
	log.Warn("Google Drive upload failed, keeping local copy only")
	return ""
}

func (wp *WorkerPool) fail(log *logrus.Entry, job *Job, step string, err error) {
	log.WithError(err).Errorf("Archive %s failed", step)
	job.Status = types.StatusFailed
	job.Error = fmt.Errorf("%s: %w", step, err)
}
