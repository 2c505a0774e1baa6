// Package events carries experiment lifecycle notifications from the domain
// services to outbound sinks (MQTT, WebSocket).
//
// Publishing is fire-and-forget: a sink failure never fails the request that
// produced the event.
package events

import (
	"context"
	"sync"
	"time"
)

// Type names a lifecycle event. The value doubles as the WebSocket channel.
type Type string

const (
	ExperimentQueued        Type = "experiment.queued"
	ExperimentStatusChanged Type = "experiment.status_changed"
	ExperimentDeleted       Type = "experiment.deleted"
	ResultRecorded          Type = "result.recorded"
)

// Event is a single lifecycle notification.
type Event struct {
	Type         Type      `json:"type"`
	ExperimentID string    `json:"experimentId,omitempty"`
	ResultID     int64     `json:"resultId,omitempty"`
	Status       string    `json:"status,omitempty"`
	PrevStatus   string    `json:"previousStatus,omitempty"`
	OwnerID      string    `json:"ownerId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}

// FanOut delivers each event to every wrapped publisher in order.
type FanOut []Publisher

// Publish implements Publisher. Nil entries are skipped.
func (f FanOut) Publish(ctx context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	for _, p := range f {
		if p != nil {
			p.Publish(ctx, ev)
		}
	}
}

// Recorder keeps published events in memory. Tests use it to assert what a
// service emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of each published event, in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
