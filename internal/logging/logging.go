// Package logging configures logrus and keeps the most recent log lines in
// memory for the /logs endpoint.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the number of lines kept when none is configured
const DefaultBufferSize = 1000

// LogBuffer captures logs in memory
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

// NewLogBuffer keeps the last max lines
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = DefaultBufferSize
	}
	return &LogBuffer{lines: make([]string, 0, max), max: max}
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		lb.lines = append(lb.lines, line)
	}
	if len(lb.lines) > lb.max {
		lb.lines = append([]string(nil), lb.lines[len(lb.lines)-lb.max:]...)
	}

	return len(p), nil
}

// GetLogs returns a copy of the buffered lines, oldest first
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}

// Setup points the standard logrus logger at stdout and buf, and routes the
// stdlib logger through it as well.
func Setup(level string, buf *LogBuffer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	var out io.Writer = os.Stdout
	if buf != nil {
		out = io.MultiWriter(os.Stdout, buf)
	}

	logrus.SetLevel(lvl)
	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})

	log.SetFlags(0)
	log.SetOutput(logrus.StandardLogger().WriterLevel(logrus.InfoLevel))
	return nil
}
