// Package transport carries participant actions and match events over websockets.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"chessroom/internal/server/core"
	"chessroom/internal/server/processor"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/time/rate"
)

var (
	ErrUnknownConn = errors.New("unknown connection")
	ErrSlowConn    = errors.New("connection send queue full")
)

// Dispatcher executes commands produced from inbound actions
type Dispatcher interface {
	Execute(ctx context.Context, cmd processor.Command) error
}

// Config tunes the websocket transport
type Config struct {
	AllowedOrigins   []string
	ActionsPerSecond float64
	ActionBurst      int
	SendQueue        int
	HandshakeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ActionsPerSecond <= 0 {
		c.ActionsPerSecond = 10
	}
	if c.ActionBurst <= 0 {
		c.ActionBurst = 20
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 64
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	return c
}

// Hub tracks open connections and routes events to them
type Hub struct {
	mu       deadlock.RWMutex
	conns    map[string]*Conn
	dispatch Dispatcher
	cfg      Config
	upgrader websocket.Upgrader
	closing  atomic.Bool
}

func NewHub(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		conns: make(map[string]*Conn),
		cfg:   cfg,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// Bind sets the dispatcher. Must be called before serving.
func (h *Hub) Bind(d Dispatcher) {
	h.dispatch = d
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	return false
}

// Router exposes the websocket endpoint
func (h *Hub) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
	return r
}

// ServeWS upgrades the request and runs the connection until it closes
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	c := &Conn{
		id:      uuid.NewString(),
		hub:     h,
		ws:      ws,
		send:    make(chan []byte, h.cfg.SendQueue),
		closed:  make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.ActionsPerSecond), h.cfg.ActionBurst),
	}
	h.register(c)
	log.Debug().Str("conn", c.id).Str("remote", r.RemoteAddr).Msg("connection opened")

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
}

// unregister removes c and reports the implicit disconnect action
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()

	if !ok {
		return
	}
	log.Debug().Str("conn", c.id).Msg("connection closed")

	// Connections dropped by Shutdown leave their matches to be resumed after restart
	if h.dispatch == nil || h.closing.Load() {
		return
	}
	if err := h.dispatch.Execute(context.Background(), processor.NewDisconnectCommand("", c.id)); err != nil {
		log.Error().Err(err).Str("conn", c.id).Msg("disconnect handling failed")
	}
}

func (h *Hub) lookup(connID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connID]
	return c, ok
}

// Send queues ev for connID. A connection whose queue is full is closed.
func (h *Hub) Send(connID string, ev core.Event) error {
	c, ok := h.lookup(connID)
	if !ok {
		return ErrUnknownConn
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	return c.enqueue(b)
}

// Connected reports whether connID is open
func (h *Hub) Connected(connID string) bool {
	_, ok := h.lookup(connID)
	return ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every connection without reporting disconnects
func (h *Hub) Shutdown() {
	h.closing.Store(true)

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.close()
	}
}
