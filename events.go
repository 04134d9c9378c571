package oneflowauth

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType names a session state transition.
type EventType string

const (
	// EventHydrated fires when Hydrate restores a valid persisted session.
	EventHydrated EventType = "session.hydrated"
	// EventHydrateEmpty fires when Hydrate finds no persisted session.
	EventHydrateEmpty EventType = "session.hydrate_empty"
	// EventHydrateCorrupt fires when Hydrate clears a corrupt or partial
	// persisted session. The recovery itself is silent to the caller.
	EventHydrateCorrupt EventType = "session.hydrate_corrupt"
	// EventLoggedIn fires after a successful login.
	EventLoggedIn EventType = "session.logged_in"
	// EventLoggedOut fires when an existing session is torn down.
	EventLoggedOut EventType = "session.logged_out"
	// EventIdentityUpdated fires after UpdateIdentity merges new fields.
	EventIdentityUpdated EventType = "session.identity_updated"
	// EventTokenRotated fires when UpdateIdentity also replaced the token.
	EventTokenRotated EventType = "session.token_rotated"
	// EventStorageDegraded fires when a best-effort mirror write or clear
	// failed while the in-memory state moved on.
	EventStorageDegraded EventType = "session.storage_degraded"
)

// SessionEvent is published to the configured EventSink on every observable
// transition. Session carries the state after the transition; it is the zero
// value for logged-out and corrupt-recovery events.
type SessionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventSink receives session events. Implementations must be safe for
// concurrent use; Emit is called from the dispatcher goroutine.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements EventSink.
func (NoOpSink) Emit(context.Context, SessionEvent) {}

// ChannelSink forwards events to a buffered channel, for UI layers that want
// to range over transitions.
type ChannelSink struct {
	events chan SessionEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan SessionEvent, buffer),
	}
}

// Emit implements EventSink.
func (s *ChannelSink) Emit(ctx context.Context, event SessionEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan SessionEvent {
	return s.events
}

// JSONWriterSink writes one JSON line per event, typically to a log file.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements EventSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event SessionEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
