// Package ws streams expansion progress to WebSocket subscribers. Each
// client follows exactly one expansion id.
package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/kpfed/internal/metrics"
)

const (
	broadcastBuffer = 256
	registerBuffer  = 64

	maxClients             = 1000
	maxClientsPerExpansion = 20
)

type topicBroadcast struct {
	expansionID string
	msg         []byte
}

// Hub manages active WebSocket clients and fans out trace events.
// All client map mutations happen exclusively in the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	topicCount map[string]int
	register   chan *Client
	unregister chan *Client
	broadcast  chan topicBroadcast
	shutdown   chan struct{}
	done       chan struct{}
	count      atomic.Int64
	log        *logrus.Logger
	seq        *EventSequence
	buffer     *EventBuffer
}

// NewHub creates a new Hub instance.
func NewHub(log *logrus.Logger) *Hub {
	seq := NewEventSequence()

	return &Hub{
		clients:    make(map[*Client]bool),
		topicCount: make(map[string]int),
		register:   make(chan *Client, registerBuffer),
		unregister: make(chan *Client, registerBuffer),
		broadcast:  make(chan topicBroadcast, broadcastBuffer),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		log:        log,
		seq:        seq,
		buffer:     NewEventBuffer(defaultBufferMaxLen, defaultBufferMaxAge, seq.Forget),
	}
}

const drainTimeout = 3 * time.Second

// Run is the hub event loop. It exits when Shutdown is called or ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer h.buffer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.drainClients()

			return
		case <-h.shutdown:
			h.drainClients()

			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			if h.clients[client] {
				h.remove(client)
			}

			h.updateCount()
			h.log.WithField("total", len(h.clients)).Debug("ws.client unregistered")

		case b := <-h.broadcast:
			for client := range h.clients {
				if client.ExpansionID != b.expansionID {
					continue
				}

				select {
				case client.send <- b.msg:
				default:
					h.remove(client)
				}
			}

			h.updateCount()
		}
	}
}

func (h *Hub) add(client *Client) {
	if len(h.clients) >= maxClients {
		h.log.Warn("ws.register: global connection limit reached, dropping client")
		client.closeSend()

		return
	}

	if h.topicCount[client.ExpansionID] >= maxClientsPerExpansion {
		h.log.WithField("expansion_id", client.ExpansionID).Warn("ws.register: per-expansion limit reached, dropping client")
		client.closeSend()

		return
	}

	h.clients[client] = true
	h.topicCount[client.ExpansionID]++
	h.updateCount()
	h.log.WithFields(logrus.Fields{
		"expansion_id": client.ExpansionID,
		"total":        len(h.clients),
	}).Debug("ws.client registered")
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	client.closeSend()

	h.topicCount[client.ExpansionID]--
	if h.topicCount[client.ExpansionID] <= 0 {
		delete(h.topicCount, client.ExpansionID)
	}
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.WSConnections.Set(float64(len(h.clients)))
}

// maxBroadcastPayload caps a single event frame.
const maxBroadcastPayload = 64 * 1024

func (h *Hub) send(expansionID string, msg []byte) {
	if len(msg) > maxBroadcastPayload {
		h.log.WithFields(logrus.Fields{
			"expansion_id": expansionID,
			"payload_size": len(msg),
		}).Warn("ws.broadcast: dropping oversized payload")

		return
	}

	select {
	case h.broadcast <- topicBroadcast{expansionID: expansionID, msg: msg}:
	default:
		h.log.Warn("ws.broadcast: channel full, dropping message")
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	default:
		h.log.Warn("ws.register: channel full, dropping client")
		c.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// BroadcastEvent assigns a sequence id, buffers the event for replay, and
// sends it to every client following expansionID.
func (h *Hub) BroadcastEvent(eventType, expansionID string, data json.RawMessage) {
	evt := Event{
		Type:        eventType,
		ID:          h.seq.Next(expansionID),
		ExpansionID: expansionID,
		Data:        data,
		Time:        time.Now(),
	}

	msg, err := json.Marshal(evt)
	if err != nil {
		h.log.WithError(err).Error("ws.broadcast: marshal event")
		return
	}

	h.buffer.Append(expansionID, &evt)
	h.send(expansionID, msg)
}

// Shutdown sends a shutdown frame to every client, waits for their write
// pumps to flush, then closes all connections.
func (h *Hub) Shutdown() {
	close(h.shutdown)
	<-h.done
}

func (h *Hub) drainClients() {
	if len(h.clients) == 0 {
		return
	}

	h.log.WithField("clients", len(h.clients)).Info("ws.drain")

	shutdownMsg := []byte(`{"type":"shutdown","message":"server shutting down"}`)
	for client := range h.clients {
		select {
		case client.send <- shutdownMsg:
		default:
		}
	}

	deadline := time.After(drainTimeout)
	ticker := time.NewTicker(50 * time.Millisecond) //nolint:mnd // poll interval
	defer ticker.Stop()

wait:
	for {
		drained := true

		for client := range h.clients {
			if len(client.send) > 0 {
				drained = false
				break
			}
		}

		if drained {
			break
		}

		select {
		case <-deadline:
			h.log.Warn("ws.drain: timeout, closing remaining clients")
			break wait
		case <-ticker.C:
		}
	}

	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}

	h.topicCount = make(map[string]int)
	h.updateCount()
}

// ReplayEvents sends buffered events newer than lastEventID to the client.
// It returns false if the requested id has already been evicted.
func (h *Hub) ReplayEvents(client *Client, lastEventID uint64) bool {
	oldest := h.buffer.OldestID(client.ExpansionID)
	if oldest > 0 && lastEventID > 0 && lastEventID < oldest {
		return false
	}

	for _, evt := range h.buffer.Since(client.ExpansionID, lastEventID) {
		msg, err := json.Marshal(evt)
		if err != nil {
			continue
		}

		select {
		case client.send <- msg:
		default:
			return true
		}
	}

	return true
}
