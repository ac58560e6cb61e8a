// Package cleanup prunes old archived transcripts.
package cleanup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults used when the scheduler is given a non-positive duration
const (
	DefaultInterval = time.Hour
	DefaultMaxAge   = 30 * 24 * time.Hour
)

// History drops the record of an archived file once it is removed
type History interface {
	DeleteByLocalPath(ctx context.Context, path string) (int64, error)
}

// Scheduler periodically removes archive files older than maxAge
type Scheduler struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	log      *logrus.Entry
	history  History

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewScheduler creates a new cleanup scheduler. history may be nil.
func NewScheduler(dir string, interval, maxAge time.Duration, history History) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Scheduler{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		log:      logrus.WithField("component", "cleanup"),
		history:  history,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval
func (s *Scheduler) Start() {
	s.log.Info("Running initial archive cleanup...")
	s.CleanOnce()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.CleanOnce()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.log.Infof("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

// Stop stops the scheduler and waits for a running pass
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.log.Info("Cleanup scheduler stopped")
	})
}

// CleanOnce deletes expired files and then empty date directories. It
// returns the number of files and bytes removed.
func (s *Scheduler) CleanOnce() (deletedCount int, deletedSize int64) {
	now := s.now()
	var dirs []string

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if d.IsDir() {
			if path != s.dir {
				dirs = append(dirs, path)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}

		if err := os.Remove(path); err != nil {
			s.log.WithError(err).Warnf("Failed to delete old file %s", path)
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		s.forget(path)
		s.log.Debugf("Deleted old archive file: %s (age: %s, size: %dKB)",
			filepath.Base(path), age.Round(time.Hour), info.Size()/1024)
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("Error during cleanup")
	}

	// deepest first, so day dirs go before their month dirs
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		os.Remove(dir) // fails unless empty
	}

	if deletedCount > 0 {
		s.log.Infof("Cleanup complete: %d files deleted, %.2fMB freed",
			deletedCount, float64(deletedSize)/(1024*1024))
	}
	return deletedCount, deletedSize
}

func (s *Scheduler) forget(path string) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := s.history.DeleteByLocalPath(ctx, path)
	if err != nil {
		s.log.WithError(err).Warnf("Failed to drop history for %s", path)
		return
	}
	if n > 0 {
		s.log.Debugf("Dropped %d history record(s) for %s", n, filepath.Base(path))
	}
}

// EnsureDirExists creates the archive directory if it doesn't exist
func EnsureDirExists(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
