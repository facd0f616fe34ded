package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventTrace    = "trace"
	EventFinished = "finished"
)

// Event is the frame sent to WebSocket clients.
type Event struct {
	Type        string          `json:"type"`
	ID          uint64          `json:"id"`
	ExpansionID string          `json:"expansion_id"`
	Data        json.RawMessage `json:"data"`
	Time        time.Time       `json:"time"`
}

// SubscribeMsg is sent by the client to request replay of buffered events.
type SubscribeMsg struct {
	Type        string `json:"type"`
	LastEventID uint64 `json:"last_event_id"`
}

// ResetMsg tells the client that the events it asked for are gone.
type ResetMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// EventSequence hands out monotonic event ids per expansion.
type EventSequence struct {
	mu       sync.Mutex
	counters map[string]*atomic.Uint64
}

// NewEventSequence creates a new EventSequence.
func NewEventSequence() *EventSequence {
	return &EventSequence{counters: make(map[string]*atomic.Uint64)}
}

// Next returns the next sequence number for an expansion.
func (es *EventSequence) Next(expansionID string) uint64 {
	es.mu.Lock()
	counter, ok := es.counters[expansionID]
	if !ok {
		counter = &atomic.Uint64{}
		es.counters[expansionID] = counter
	}
	es.mu.Unlock()

	return counter.Add(1)
}

// Forget drops the counter for an expansion.
func (es *EventSequence) Forget(expansionID string) {
	es.mu.Lock()
	delete(es.counters, expansionID)
	es.mu.Unlock()
}
