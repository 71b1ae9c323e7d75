// Package gateway serves run progress over HTTP: a websocket event
// stream, Prometheus metrics, and recent run history.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/sheetflow/pkg/orchestrator"
)

// RunLister supplies past run summaries for the /runs endpoint.
type RunLister interface {
	Recent(limit int) ([]orchestrator.Summary, error)
}

// Config holds gateway settings.
type Config struct {
	Addr string
}

const (
	writeTimeout     = 10 * time.Second
	clientSendBuffer = 64
)

// Server is the progress gateway.
type Server struct {
	cfg     Config
	bus     *orchestrator.EventBus
	history RunLister
	metrics http.Handler
	log     zerolog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	srv       *http.Server
	cancelSub func()
	pumpDone  chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewServer creates a gateway. The history lister and metrics handler
// are optional; their endpoints report 404 when absent.
func NewServer(cfg Config, bus *orchestrator.EventBus, history RunLister, metrics http.Handler, log zerolog.Logger) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("gateway address is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	return &Server{
		cfg:     cfg,
		bus:     bus,
		history: history,
		metrics: metrics,
		log:     log.With().Str("component", "gateway").Logger(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the gateway's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/runs", s.handleRuns)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Start begins listening and streaming events. It returns once the
// listener is bound; serving continues in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	s.cfg.Addr = ln.Addr().String()

	events, cancel := s.bus.Subscribe()
	s.cancelSub = cancel
	s.pumpDone = make(chan struct{})
	go s.pump(events)

	s.srv = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("gateway server stopped")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("gateway listening")
	return nil
}

// Addr reports the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.srv == nil {
		return ""
	}
	return s.cfg.Addr
}

// Shutdown stops the server and disconnects all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelSub != nil {
		s.cancelSub()
		<-s.pumpDone
	}

	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// pump fans bus events out to connected clients.
func (s *Server) pump(events <-chan orchestrator.Event) {
	defer close(s.pumpDone)
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Error().Err(err).Str("type", string(ev.Type)).Msg("marshal event")
			continue
		}
		s.mu.Lock()
		for c := range s.clients {
			select {
			case c.send <- data:
			default:
				// Slow client: drop the event rather than stall the run.
			}
		}
		s.mu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.log.Debug().Int("clients", n).Msg("event client connected")

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
}

// readLoop drains the connection so pings are answered, and drops the
// client once it disconnects.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.Recent(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list runs")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []orchestrator.Summary{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}
