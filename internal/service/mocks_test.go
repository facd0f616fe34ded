package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/kg"
	"github.com/persistorai/kpfed/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

// mockSelector answers capability questions from func fields. Nil funcs
// accept everything and leave ids unchanged.
type mockSelector struct {
	accepts   func(qg *models.QueryGraph, provider string) (bool, error)
	rewrite   func(qg *models.QueryGraph, provider string) (*models.QueryGraph, error)
	urls      map[string]string
	providers []string
}

func (m *mockSelector) KPAcceptsSingleHopQG(_ context.Context, qg *models.QueryGraph, provider string, _ bool) (bool, error) {
	if m.accepts == nil {
		return true, nil
	}

	return m.accepts(qg, provider)
}

func (m *mockSelector) MakeQGUseSupportedPrefixes(_ context.Context, qg *models.QueryGraph, provider string) (*models.QueryGraph, error) {
	if m.rewrite == nil {
		return qg.Clone(), nil
	}

	return m.rewrite(qg, provider)
}

func (m *mockSelector) EndpointURL(_ context.Context, provider string) (string, error) {
	url, ok := m.urls[provider]
	if !ok {
		return "", models.ErrUnknownKey("provider", provider)
	}

	return url, nil
}

func (m *mockSelector) ProvidersFor(context.Context, *models.QueryGraph, bool) ([]string, error) {
	return m.providers, nil
}

// mockAnswerer records the query graphs it was asked and returns fragments from func fields.
type mockAnswerer struct {
	mu    sync.Mutex
	calls []answerCall

	oneHop     func(qg *models.QueryGraph, provider string) (*kg.Graph, error)
	singleNode func(qg *models.QueryGraph, provider string) (*kg.Graph, error)
}

type answerCall struct {
	qg       *models.QueryGraph
	provider string
	opts     QueryOptions
}

func (m *mockAnswerer) record(qg *models.QueryGraph, provider string, opts QueryOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, answerCall{qg: qg.Clone(), provider: provider, opts: opts})
}

func (m *mockAnswerer) AnswerOneHop(_ context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error) {
	m.record(qg, provider, opts)
	return m.oneHop(qg, provider)
}

func (m *mockAnswerer) AnswerSingleNode(_ context.Context, qg *models.QueryGraph, provider string, opts QueryOptions) (*kg.Graph, error) {
	m.record(qg, provider, opts)
	return m.singleNode(qg, provider)
}

func (m *mockAnswerer) callsFor(edgeKey string) []answerCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []answerCall
	for _, c := range m.calls {
		if _, ok := c.qg.Edges[edgeKey]; ok {
			out = append(out, c)
		}
	}

	return out
}

// mockSink collects published trace events.
type mockSink struct {
	mu       sync.Mutex
	entries  []models.TraceEntry
	finished map[string]FinishedEvent
}

func (m *mockSink) Publish(e models.TraceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, e)
}

func (m *mockSink) Finish(id string, s FinishedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finished == nil {
		m.finished = map[string]FinishedEvent{}
	}

	m.finished[id] = s
}

// mockBroadcaster records hub broadcasts.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcast
}

type broadcast struct {
	kind, expansionID string
	data              json.RawMessage
}

func (m *mockBroadcaster) BroadcastEvent(kind, expansionID string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, broadcast{kind: kind, expansionID: expansionID, data: data})
}
