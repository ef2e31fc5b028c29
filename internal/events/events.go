// Package events provides the in-process event bus.
// Snapshot writes publish events that drive delta/score recomputation and
// the dashboard event streams; handlers run after the write completes, never
// concurrently with it.
package events

import (
	"sync"
	"time"
)

// EventType identifies a category of system event.
type EventType string

const (
	// SnapshotUpserted fires after a snapshot write was applied to the store.
	SnapshotUpserted EventType = "snapshot_upserted"
	// ScoreUpdated fires after a disclosure was rescored.
	ScoreUpdated EventType = "score_updated"
	// SyncProgress fires after each completed page of a date's sync.
	SyncProgress EventType = "sync_progress"
	// SyncCompleted fires when a date's sync reaches a terminal state.
	SyncCompleted EventType = "sync_completed"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Handler processes a published event. Handlers run synchronously on the
// publishing goroutine; long work belongs in the handler's own goroutine.
type Handler func(*Event)

// subscription ties a handler to an identity so it can be removed again.
type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for an event type and returns a function
// that removes it again. Long-lived subscribers (the recompute service) may
// discard the return value; per-connection subscribers (SSE, websocket)
// must call it when the connection ends.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})
	return func() { b.unsubscribe(eventType, id) }
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to all handlers registered for its type.
func (b *Bus) Publish(eventType EventType, data interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	for i, sub := range b.handlers[eventType] {
		handlers[i] = sub.handler
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// SnapshotUpsertedData carries the key of an applied snapshot write.
type SnapshotUpsertedData struct {
	CompanyID string `json:"company_id"`
	Period    string `json:"period"`
	Corrected bool   `json:"corrected"` // true when an existing record was overwritten
}

// EventType returns the event type for SnapshotUpsertedData
func (d *SnapshotUpsertedData) EventType() EventType { return SnapshotUpserted }

// ScoreUpdatedData carries a freshly computed score.
type ScoreUpdatedData struct {
	CompanyID string `json:"company_id"`
	Period    string `json:"period"`
	Score     int    `json:"score"`
}

// EventType returns the event type for ScoreUpdatedData
func (d *ScoreUpdatedData) EventType() EventType { return ScoreUpdated }

// SyncProgressData carries per-page progress of one date's sync run.
type SyncProgressData struct {
	TargetDate string `json:"target_date"`
	PagesDone  int    `json:"pages_done"`
	Fetched    int    `json:"fetched"`
	Skipped    int    `json:"skipped"`
}

// EventType returns the event type for SyncProgressData
func (d *SyncProgressData) EventType() EventType { return SyncProgress }

// SyncCompletedData carries the terminal state of one date's sync run.
type SyncCompletedData struct {
	TargetDate string `json:"target_date"`
	State      string `json:"state"`
	Fetched    int    `json:"fetched"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
}

// EventType returns the event type for SyncCompletedData
func (d *SyncCompletedData) EventType() EventType { return SyncCompleted }
