package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// ErrTraceExpired is returned when the server no longer buffers the
// expansion's events.
var ErrTraceExpired = errors.New("trace events no longer buffered")

// Events replays the trace stream of an expansion from the start, calling fn
// for each frame, and returns after the "finished" event. fn returning an
// error stops the stream with that error.
func (c *Client) Events(ctx context.Context, expansionID string, fn func(Event) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/ws")
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.RawQuery = url.Values{"expansion_id": {expansionID}}.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial trace stream: %w", err)
	}
	defer conn.CloseNow() //nolint:errcheck // best-effort close

	sub, err := json.Marshal(map[string]any{"type": "subscribe", "last_event_id": 0})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var last uint64

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read trace stream: %w", err)
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		if ev.Type == "reset" {
			return ErrTraceExpired
		}

		// Live frames can race the replay; ids are monotonic per expansion.
		if ev.ID != 0 && ev.ID <= last {
			continue
		}

		last = ev.ID

		if err := fn(ev); err != nil {
			return err
		}

		if ev.Type == "finished" {
			conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck // best-effort
			return nil
		}
	}
}
