// Package monitor streams harness events to websocket clients while a
// suite runs.
//
// A Hub is installed as harness.Options.OnEvent. Every event is broadcast
// as one JSON text message on /events. Late clients first receive the
// backlog of events published so far, so a client that connects mid-run
// sees the whole run. /summary returns the running pass/fail counts.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/fixharness/internal/harness"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultBacklog is how many events a Hub replays to new clients.
	DefaultBacklog = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Summary is the running tally of a suite.
type Summary struct {
	Fixtures int  `json:"fixtures"`
	Passed   int  `json:"passed"`
	Failed   int  `json:"failed"`
	Outputs  int  `json:"outputs"`
	Done     bool `json:"done"`
}

type client struct {
	send chan []byte
}

// Hub fans events out to connected clients. Slow clients drop events
// rather than stall the harness.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte
	limit   int
	summary Summary
	logger  *slog.Logger
}

// NewHub creates a hub replaying up to backlog events to new clients.
// backlog <= 0 uses DefaultBacklog.
func NewHub(backlog int, logger *slog.Logger) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		limit:   backlog,
		logger:  logger,
	}
}

// Publish broadcasts e. It never blocks; it is safe to use directly as
// harness.Options.OnEvent.
func (h *Hub) Publish(e harness.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("monitor: marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.tally(e)
	if len(h.backlog) == h.limit {
		h.backlog = h.backlog[1:]
	}
	h.backlog = append(h.backlog, data)

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("monitor: client too slow, dropping event", "kind", e.Kind)
		}
	}
}

func (h *Hub) tally(e harness.Event) {
	switch e.Kind {
	case harness.EventFixtureEnd:
		h.summary.Fixtures++
		if e.Pass {
			h.summary.Passed++
		} else {
			h.summary.Failed++
		}
	case harness.EventOutput:
		h.summary.Outputs++
	case harness.EventSuiteEnd:
		h.summary.Done = true
	}
}

// Summary returns the current tally.
func (h *Hub) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// subscribe registers a client and returns the backlog it missed. Both
// happen under one lock so no event is lost or duplicated.
func (h *Hub) subscribe() (*client, [][]byte) {
	c := &client{send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return c, append([][]byte(nil), h.backlog...)
}

func (h *Hub) unsubscribe(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// Handler serves /events, /summary and /health.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", h.handleEvents)
	mux.HandleFunc("/summary", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(h.Summary())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c, backlog := h.subscribe()
	defer h.unsubscribe(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send data; reading only notices close and pong frames.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msgType int, data []byte) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return conn.WriteMessage(msgType, data)
	}

	for _, data := range backlog {
		if err := write(websocket.TextMessage, data); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Server serves a Hub on a TCP address.
type Server struct {
	hub      *Hub
	server   *http.Server
	listener net.Listener
}

// Listen binds addr ("127.0.0.1:0" picks a free port) without serving yet.
func Listen(addr string, hub *Hub) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("monitor listen: %w", err)
	}
	return &Server{
		hub:      hub,
		server:   &http.Server{Handler: hub.Handler(), ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve serves until ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.server.Close()
	})
	defer stop()

	if err := s.server.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
