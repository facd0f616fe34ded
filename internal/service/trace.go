package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/metrics"
	"github.com/persistorai/kpfed/internal/models"
	"github.com/persistorai/kpfed/internal/ws"
)

// TraceSink receives every trace write and the end of each expansion.
type TraceSink interface {
	Publish(entry models.TraceEntry)
	Finish(expansionID string, summary FinishedEvent)
}

// FinishedEvent is published once an expansion returns.
type FinishedEvent struct {
	NodeCount    int    `json:"node_count"`
	EdgeCount    int    `json:"edge_count"`
	StoppedEarly bool   `json:"stopped_early,omitempty"`
	Error        string `json:"error,omitempty"`
}

type traceKey struct{ target, provider string }

// Trace is the progress log of one expansion: one entry per (role, provider)
// attempt. A later write for the same attempt replaces the earlier one.
// It is safe for concurrent use.
type Trace struct {
	id   string
	sink TraceSink
	now  func() time.Time

	mu      sync.Mutex
	entries map[traceKey]models.TraceEntry
}

// NewTrace creates a trace for expansionID. sink may be nil.
func NewTrace(expansionID string, sink TraceSink) *Trace {
	return &Trace{
		id:      expansionID,
		sink:    sink,
		now:     time.Now,
		entries: make(map[traceKey]models.TraceEntry),
	}
}

// ID returns the expansion id.
func (t *Trace) ID() string { return t.id }

// Record stores e, stamping it with the expansion id and time.
func (t *Trace) Record(e models.TraceEntry) {
	if t == nil {
		return
	}

	e.ExpansionID = t.id
	e.At = t.now()

	t.mu.Lock()
	t.entries[traceKey{e.Target(), e.Provider}] = e
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.Publish(e)
	}
}

// Entries returns a copy ordered by role, then provider.
func (t *Trace) Entries() []models.TraceEntry {
	t.mu.Lock()
	out := make([]models.TraceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Target() != out[j].Target() {
			return out[i].Target() < out[j].Target()
		}

		return out[i].Provider < out[j].Provider
	})

	return out
}

// EventBroadcaster fans an event out to subscribers of one expansion.
type EventBroadcaster interface {
	BroadcastEvent(eventType, expansionID string, data json.RawMessage)
}

type traceJob struct {
	kind        string
	expansionID string
	payload     any
}

// TracePublisher forwards trace events to the WebSocket hub from a single
// worker goroutine. Publishing never blocks an expansion: when the queue is
// full the event is dropped.
type TracePublisher struct {
	hub  EventBroadcaster
	log  *logrus.Logger
	jobs chan traceJob
}

// NewTracePublisher creates a TracePublisher with the given queue capacity.
func NewTracePublisher(hub EventBroadcaster, log *logrus.Logger, queueSize int) *TracePublisher {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &TracePublisher{hub: hub, log: log, jobs: make(chan traceJob, queueSize)}
}

// Publish implements TraceSink.
func (p *TracePublisher) Publish(entry models.TraceEntry) {
	p.enqueue(traceJob{kind: ws.EventTrace, expansionID: entry.ExpansionID, payload: entry})
}

// Finish implements TraceSink.
func (p *TracePublisher) Finish(expansionID string, summary FinishedEvent) {
	p.enqueue(traceJob{kind: ws.EventFinished, expansionID: expansionID, payload: summary})
}

func (p *TracePublisher) enqueue(job traceJob) {
	select {
	case p.jobs <- job:
	default:
		metrics.TraceEventsDropped.Inc()
		p.log.WithField("expansion_id", job.expansionID).Warn("trace queue full, dropping event")
	}
}

// Run processes events until ctx is cancelled, then drains what is queued.
func (p *TracePublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case job := <-p.jobs:
			p.process(job)
		}
	}
}

func (p *TracePublisher) drain() {
	for {
		select {
		case job := <-p.jobs:
			p.process(job)
		default:
			return
		}
	}
}

func (p *TracePublisher) process(job traceJob) {
	data, err := json.Marshal(job.payload)
	if err != nil {
		p.log.WithError(err).Warn("trace event marshal failed")
		return
	}

	p.hub.BroadcastEvent(job.kind, job.expansionID, data)
}
