// Package events buffers the view updates of a console session so the page
// can read them incrementally or have them pushed over a websocket.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type classifies a view update.
type Type string

const (
	TypeLoading    Type = "loading"
	TypeFileInfo   Type = "file_info"
	TypeValidation Type = "validation"
	TypeSections   Type = "sections"
	TypeProgress   Type = "progress"
	TypeResult     Type = "result"
	TypeDownload   Type = "download"
	TypeResetForms Type = "reset_forms"
	TypeNotify     Type = "notify"
	TypeDismiss    Type = "dismiss"
)

// Event is a sequenced view update. Data holds the type specific payload.
type Event struct {
	Seq       int64           `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Bus stores recent events and provides incremental reads.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	changed   chan struct{}
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		changed:   make(chan struct{}),
	}
}

// Publish marshals payload, appends the event and wakes all waiters.
func (b *Bus) Publish(t Type, payload any) (Event, error) {
	event := Event{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		event.Data = data
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	event.Timestamp = time.Now().UTC()

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return event, nil
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Changed returns a channel that is closed on the next Publish.
func (b *Bus) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}

// LastSeq returns the sequence of the newest event, 0 when empty.
func (b *Bus) LastSeq() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nextSeq
}
