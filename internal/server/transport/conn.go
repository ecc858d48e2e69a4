package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chessroom/internal/server/core"
	"chessroom/internal/server/processor"
	"chessroom/internal/server/validate"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is one participant connection
type Conn struct {
	id        string
	hub       *Hub
	ws        *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	limiter   *rate.Limiter
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

func (c *Conn) enqueue(b []byte) error {
	select {
	case <-c.closed:
		return ErrUnknownConn
	default:
	}

	select {
	case c.send <- b:
		return nil
	default:
		log.Warn().Str("conn", c.id).Msg("send queue full, closing connection")
		c.close()
		return ErrSlowConn
	}
}

// readPump decodes actions and executes them in arrival order
func (c *Conn) readPump() {
	defer func() {
		c.close()
		c.hub.unregister(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("conn", c.id).Msg("unexpected close")
			}
			return
		}
		c.handle(payload)
	}
}

func (c *Conn) handle(payload []byte) {
	var action core.Action
	if err := json.Unmarshal(payload, &action); err != nil {
		c.sendError("", "invalid message format", core.ErrInvalidRequest, err.Error())
		return
	}

	if !c.limiter.Allow() {
		c.sendError(action.MatchID, "rate limit exceeded", core.ErrRateLimitExceeded, "")
		return
	}

	if err := validate.Struct(action); err != nil {
		c.sendError(action.MatchID, "validation failed", core.ErrInvalidRequest, err.Error())
		return
	}

	cmd, err := processor.NewActionCommand(c.id, action)
	if err != nil {
		c.sendError(action.MatchID, "unsupported action", core.ErrInvalidRequest, err.Error())
		return
	}

	if c.hub.dispatch == nil {
		return
	}
	if err := c.hub.dispatch.Execute(context.Background(), cmd); err != nil {
		log.Error().Err(err).Str("conn", c.id).Str("match", cmd.MatchID).Stringer("cmd", cmd.Type).Msg("action failed")
	}
}

func (c *Conn) sendError(matchID, message, code, details string) {
	ev := core.NewErrorEvent(matchID, message, code)
	if details != "" {
		ev.Payload = core.ErrorResponse{Error: message, Code: code, Details: details}
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = c.enqueue(b)
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
