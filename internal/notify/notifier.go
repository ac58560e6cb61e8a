// Package notify keeps transient, dismissible user notifications.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "danger"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// DefaultTTL is how long a notification stays visible
const DefaultTTL = 5 * time.Second

var icons = map[Level]string{
	LevelSuccess: "check-circle",
	LevelError:   "exclamation-triangle",
	LevelWarning: "exclamation-circle",
	LevelInfo:    "info-circle",
}

// Icon returns the icon name for a level
func Icon(l Level) string {
	if icon, ok := icons[l]; ok {
		return icon
	}
	return "info-circle"
}

// Notification is one visible message
type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Icon      string    `json:"icon"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Sink receives notifications and their dismissals
type Sink interface {
	Notify(n Notification)
	Dismiss(id string)
}

// Center posts notifications to a sink and dismisses them after the TTL
type Center struct {
	sink Sink
	ttl  time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewCenter creates a notification center; ttl <= 0 uses DefaultTTL
func NewCenter(sink Sink, ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Center{
		sink:   sink,
		ttl:    ttl,
		timers: make(map[string]*time.Timer),
	}
}

// Post shows a notification and schedules its dismissal
func (c *Center) Post(level Level, message string) Notification {
	n := Notification{
		ID:        "alert_" + uuid.New().String(),
		Level:     level,
		Message:   message,
		Icon:      Icon(level),
		ExpiresAt: time.Now().Add(c.ttl),
	}

	c.mu.Lock()
	c.timers[n.ID] = time.AfterFunc(c.ttl, func() { c.expire(n.ID) })
	c.mu.Unlock()

	c.sink.Notify(n)
	return n
}

func (c *Center) Success(message string) { c.Post(LevelSuccess, message) }
func (c *Center) Error(message string)   { c.Post(LevelError, message) }
func (c *Center) Warning(message string) { c.Post(LevelWarning, message) }
func (c *Center) Info(message string)    { c.Post(LevelInfo, message) }

// Active returns the number of notifications not yet dismissed
func (c *Center) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Clear dismisses every visible notification immediately
func (c *Center) Clear() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.timers))
	for id, t := range c.timers {
		t.Stop()
		ids = append(ids, id)
	}
	c.timers = make(map[string]*time.Timer)
	c.mu.Unlock()

	for _, id := range ids {
		c.sink.Dismiss(id)
	}
}

func (c *Center) expire(id string) {
	c.mu.Lock()
	_, ok := c.timers[id]
	delete(c.timers, id)
	c.mu.Unlock()

	if ok {
		c.sink.Dismiss(id)
	}
}
