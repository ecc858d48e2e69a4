// Package api is the websocket client side of the match protocol.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chessroom/internal/server/core"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

const writeWait = 10 * time.Second

// Event is an inbound server event with its payload left encoded
type Event struct {
	Type    core.EventType  `json:"type"`
	MatchID string          `json:"matchId"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s event has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

// Client is one websocket connection to the match server
type Client struct {
	URL string

	mu     sync.Mutex
	ws     *websocket.Conn
	events chan Event
	stop   chan struct{}
	done   chan struct{}
	err    error
}

func New(url string) *Client {
	return &Client{URL: url}
}

// SetURL updates the server URL used by the next Connect
func (c *Client) SetURL(url string) {
	c.URL = strings.TrimRight(url, "/")
}

// Connect dials the server. Events arrive on Events until the connection closes.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return nil
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}

	c.ws = ws
	c.events = make(chan Event, 64)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.err = nil
	go c.readLoop(ws, c.events, c.stop, c.done)
	return nil
}

func (c *Client) readLoop(ws *websocket.Conn, events chan<- Event, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(events)

	for {
		var ev Event
		if err := ws.ReadJSON(&ev); err != nil {
			c.mu.Lock()
			if c.ws == ws {
				c.err = err
				c.ws = nil
				ws.Close()
			}
			c.mu.Unlock()
			return
		}
		select {
		case events <- ev:
		case <-stop:
			return
		}
	}
}

// Events returns the channel of the current connection, nil before Connect
func (c *Client) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Connected reports whether the connection is open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

// Err returns the error that ended the last connection
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one action
func (c *Client) Send(a core.Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(a); err != nil {
		return fmt.Errorf("send %s: %w", a.Type, err)
	}
	return nil
}

// Close ends the connection; the server treats it as a disconnect
func (c *Client) Close() error {
	c.mu.Lock()
	ws, stop, done := c.ws, c.stop, c.done
	c.ws = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	close(stop)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	err := ws.Close()
	<-done
	return err
}
