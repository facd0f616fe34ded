package ws

import (
	"sync"
	"time"
)

const (
	defaultBufferMaxLen = 500
	defaultBufferMaxAge = 30 * time.Minute
	bufferSweepInterval = 5 * time.Minute
)

// EventBuffer keeps recent events per expansion so late subscribers can
// replay the trace from the beginning.
type EventBuffer struct {
	mu      sync.RWMutex
	events  map[string][]Event
	maxAge  time.Duration
	maxLen  int
	onEvict func(expansionID string)
	stop    chan struct{}
	once    sync.Once
}

// NewEventBuffer creates an EventBuffer and starts its sweeper goroutine.
// onEvict, if non-nil, is called for every expansion the sweeper drops.
func NewEventBuffer(maxLen int, maxAge time.Duration, onEvict func(expansionID string)) *EventBuffer {
	eb := &EventBuffer{
		events:  make(map[string][]Event),
		maxAge:  maxAge,
		maxLen:  maxLen,
		onEvict: onEvict,
		stop:    make(chan struct{}),
	}
	go eb.sweepLoop()

	return eb
}

// Stop halts the sweeper goroutine. It is safe to call more than once.
func (eb *EventBuffer) Stop() {
	eb.once.Do(func() { close(eb.stop) })
}

func (eb *EventBuffer) sweepLoop() {
	ticker := time.NewTicker(bufferSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-eb.stop:
			return
		case <-ticker.C:
			eb.evictStale(time.Now())
		}
	}
}

// evictStale drops expansions whose newest event is older than maxAge.
func (eb *EventBuffer) evictStale(now time.Time) {
	cutoff := now.Add(-eb.maxAge)

	eb.mu.Lock()
	var evicted []string

	for id, buf := range eb.events {
		if len(buf) == 0 || buf[len(buf)-1].Time.Before(cutoff) {
			delete(eb.events, id)
			evicted = append(evicted, id)
		}
	}
	eb.mu.Unlock()

	if eb.onEvict != nil {
		for _, id := range evicted {
			eb.onEvict(id)
		}
	}
}

// Append stores an event, trimming to maxLen.
func (eb *EventBuffer) Append(expansionID string, event *Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	buf := append(eb.events[expansionID], *event)
	if len(buf) > eb.maxLen {
		buf = buf[len(buf)-eb.maxLen:]
	}

	eb.events[expansionID] = buf
}

// Since returns a copy of the events for an expansion with id > lastEventID.
func (eb *EventBuffer) Since(expansionID string, lastEventID uint64) []Event {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[expansionID]

	lo, hi := 0, len(buf)
	for lo < hi {
		mid := (lo + hi) / 2
		if buf[mid].ID <= lastEventID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo >= len(buf) {
		return nil
	}

	out := make([]Event, len(buf)-lo)
	copy(out, buf[lo:])

	return out
}

// OldestID returns the oldest buffered event id for an expansion, or 0.
func (eb *EventBuffer) OldestID(expansionID string) uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	buf := eb.events[expansionID]
	if len(buf) == 0 {
		return 0
	}

	return buf[0].ID
}
