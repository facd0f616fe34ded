package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout     = 10 * time.Second
	wsReadLimit      = 4096
	clientSendBuffer = 256
	maxConnLifetime  = time.Hour
	pingInterval     = 30 * time.Second
	pingTimeout      = 10 * time.Second
	maxMissedPongs   = int32(2)
)

// Client wraps a single WebSocket connection following one expansion.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	log         *logrus.Logger
	ExpansionID string
	closeOnce   sync.Once
	connectedAt time.Time
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// NewClient creates a Client for conn that follows expansionID.
func NewClient(hub *Hub, conn *websocket.Conn, expansionID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, clientSendBuffer),
		log:         hub.log,
		ExpansionID: expansionID,
		connectedAt: time.Now(),
	}
}

// ReadPump reads client frames until the connection closes. A subscribe
// frame triggers replay of buffered events.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown
	}()

	c.conn.SetReadLimit(wsReadLimit)

	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.log.WithField("status", websocket.CloseStatus(err)).Debug("ws.client disconnected")
			}

			return
		}

		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg SubscribeMsg
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != "subscribe" {
		return
	}

	if c.hub.ReplayEvents(c, msg.LastEventID) {
		return
	}

	reset, err := json.Marshal(ResetMsg{Type: "reset", Reason: "requested events are no longer buffered"})
	if err != nil {
		return
	}

	select {
	case c.send <- reset:
	default:
	}
}

func (c *Client) sendPing(ctx context.Context, missed *atomic.Int32) bool {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := c.conn.Ping(pingCtx)
	cancel()

	if err == nil {
		missed.Store(0)
		return false
	}

	return missed.Add(1) >= maxMissedPongs
}

// WritePump writes queued frames to the connection until the send channel
// closes, pings fail, or the connection outlives maxConnLifetime.
func (c *Client) WritePump(ctx context.Context) {
	defer c.conn.CloseNow() //nolint:errcheck // best-effort close on teardown

	lifetime := time.NewTimer(time.Until(c.connectedAt.Add(maxConnLifetime)))
	defer lifetime.Stop()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	var missed atomic.Int32

	for {
		select {
		case <-ping.C:
			if c.sendPing(ctx, &missed) {
				c.log.Debug("ws.client: missed pongs, closing")
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck // best-effort
				return
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()

			if err != nil {
				c.log.WithError(err).Debug("ws.client write failed")
				return
			}
		case <-lifetime.C:
			c.conn.Close(websocket.StatusNormalClosure, "max connection lifetime exceeded") //nolint:errcheck // best-effort
			return
		}
	}
}
