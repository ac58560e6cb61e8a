package session

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/video-transcriber/internal/render"
	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// StartJob makes taskID the current task and starts polling it. Any previous
// poll loop is cancelled first, so at most one loop runs per session.
func (s *Session) StartJob(taskID string) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.taskID = taskID
	s.cancel = cancel
	s.polling = true
	s.view.ShowSections(Sections{Progress: true})
	s.mu.Unlock()

	if s.hooks.JobStarted != nil {
		s.hooks.JobStarted(taskID)
	}
	s.log.WithField("task_id", taskID).Info("Polling started")

	go s.poll(ctx, taskID, gen)
}

// CancelPolling stops the poll loop but keeps the task id, so the artifact
// can still be downloaded.
func (s *Session) CancelPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
}

// poll checks immediately, then once per tick. Checks run one at a time, so
// a slow response can never be overtaken by a later one.
func (s *Session) poll(ctx context.Context, taskID string, gen uint64) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if done := s.check(ctx, taskID, gen); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// check performs one status request and reports whether the loop must end
func (s *Session) check(ctx context.Context, taskID string, gen uint64) bool {
	st, err := s.backend.Status(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		s.log.WithError(err).WithField("task_id", taskID).Warn("Status check failed")
		return false
	}
	if st.TaskID == "" {
		st.TaskID = taskID
	}

	var terminal bool
	applied := s.apply(gen, func() {
		s.view.ShowProgress(render.NewProgress(st))
		if !st.Status.Terminal() {
			return
		}
		terminal = true
		s.polling = false
		if st.Status == types.StatusFailed {
			s.notes.Error("Task failed: " + orUnknown(st.Error))
		}
	})
	if !applied {
		s.log.WithField("task_id", taskID).Debug("Discarded stale status")
		return true
	}
	if !terminal {
		return false
	}

	s.log.WithFields(logrus.Fields{"task_id": taskID, "status": st.Status}).Info("Polling stopped")
	if st.Status == types.StatusCompleted {
		s.loadResult(ctx, taskID, gen)
	} else if s.hooks.Failed != nil {
		s.hooks.Failed(&types.JobFailure{TaskID: taskID, Reason: orUnknown(st.Error)})
	}
	return true
}

// loadResult fetches and renders the artifact of a completed task, once
func (s *Session) loadResult(ctx context.Context, taskID string, gen uint64) {
	res, err := s.backend.Result(ctx, taskID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithField("task_id", taskID).Error("Result fetch failed")
		s.resultFailed(taskID, gen, "Failed to load result: "+err.Error(), fmt.Errorf("load result: %w", err))
		return
	}

	fragment, err := render.ResultFragment(res)
	if err != nil {
		s.log.WithError(err).WithField("task_id", taskID).Error("Render result")
		s.resultFailed(taskID, gen, "Failed to display result", fmt.Errorf("render result: %w", err))
		return
	}

	shown := s.apply(gen, func() {
		s.view.ShowResult(fragment)
		s.view.ShowSections(Sections{Results: true})
		s.notes.Success("Transcription completed successfully!")
	})
	if shown && s.hooks.Completed != nil {
		s.hooks.Completed(taskID, res)
	}
}

func (s *Session) resultFailed(taskID string, gen uint64, message string, err error) {
	shown := s.apply(gen, func() {
		s.notes.Error(message)
	})
	if shown && s.hooks.ResultFailed != nil {
		s.hooks.ResultFailed(taskID, err)
	}
}

// apply runs fn under the session lock if gen is still current. Reset and
// StartJob bump the generation under the same lock, so a response for an
// abandoned task can never reach the view after they return.
func (s *Session) apply(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	fn()
	return true
}

func orUnknown(reason string) string {
	if reason == "" {
		return "Unknown error"
	}
	return reason
}
