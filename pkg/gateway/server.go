package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/internal/metrics"
	"github.com/calloway/switchboard/pkg/orchestrator"
)

// Server is the websocket gateway. Each accepted connection is bound to
// exactly one freshly minted session; the client never chooses or
// switches session ids.
type Server struct {
	host string
	port int
	orch *orchestrator.Orchestrator

	server   *http.Server
	upgrader websocket.Upgrader
	clients  *registry

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds gateway configuration
type Config struct {
	Host         string
	Port         int
	Orchestrator *orchestrator.Orchestrator
}

// NewServer creates a gateway and wires itself as the orchestrator's
// outbound event sink
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		host:    cfg.Host,
		port:    cfg.Port,
		orch:    cfg.Orchestrator,
		clients: newRegistry(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	cfg.Orchestrator.SetEmitter(s.dispatch)
	return s, nil
}

// Handler returns the gateway's HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", metrics.Get().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start begins serving. Non-blocking.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	log.Info().Str("host", s.host).Int("port", s.port).Msg("Starting gateway")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop closes all connections and shuts the server down
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	log.Info().Int("connections", s.clients.len()).Msg("Shutting down gateway")

	for _, c := range s.clients.all() {
		c.close()
		s.clients.remove(c.sessionID)
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway: %w", err)
	}
	return nil
}

// dispatch routes an orchestrator event to the owning connection
func (s *Server) dispatch(ev orchestrator.OutboundEvent) {
	c, ok := s.clients.get(ev.SessionID)
	if !ok {
		log.Debug().Str("session_id", ev.SessionID).Str("kind", string(ev.Kind)).Msg("Event for disconnected session dropped")
		return
	}

	c.send(serverFrame{
		ID:         mustNanoid(),
		Kind:       string(ev.Kind),
		SessionID:  ev.SessionID,
		Transcript: ev.Transcript,
		Tool:       ev.Tool,
		Handoff:    ev.Handoff,
		Error:      ev.Error,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	sessionID := uuid.NewString()
	c := newClient(mustNanoid(), sessionID, conn)
	s.clients.add(c)
	go c.writeLoop()

	log.Info().
		Str("client_id", c.id).
		Str("session_id", sessionID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	c.send(serverFrame{
		ID:        mustNanoid(),
		Kind:      frameKindSession,
		SessionID: sessionID,
	})

	if err := s.orch.HandleInbound(orchestrator.InboundEvent{
		Kind:      orchestrator.InboundConnect,
		SessionID: sessionID,
	}); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Connect rejected")
		c.close()
		s.clients.remove(sessionID)
		return
	}

	go s.readLoop(c)
}

// readLoop consumes client frames until the connection drops
func (s *Server) readLoop(c *client) {
	defer func() {
		c.close()
		s.clients.remove(c.sessionID)

		if err := s.orch.HandleInbound(orchestrator.InboundEvent{
			Kind:      orchestrator.InboundDisconnect,
			SessionID: c.sessionID,
		}); err != nil {
			log.Debug().Err(err).Str("session_id", c.sessionID).Msg("Disconnect event rejected")
		}

		log.Info().Str("client_id", c.id).Str("session_id", c.sessionID).Msg("Client disconnected")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.id).Msg("WebSocket read error")
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.rejectFrame(c, "malformed frame")
			continue
		}

		// The session id always comes from the connection binding, never
		// from the client payload.
		ev := orchestrator.InboundEvent{
			Kind:      orchestrator.InboundKind(frame.Kind),
			SessionID: c.sessionID,
			Text:      frame.Text,
		}
		if ev.Kind != orchestrator.InboundUserMessage {
			s.rejectFrame(c, fmt.Sprintf("unsupported frame kind: %q", frame.Kind))
			continue
		}

		if err := s.orch.HandleInbound(ev); err != nil {
			s.rejectFrame(c, err.Error())
		}
	}
}

func (s *Server) rejectFrame(c *client, message string) {
	c.send(serverFrame{
		ID:        mustNanoid(),
		Kind:      string(orchestrator.OutboundError),
		SessionID: c.sessionID,
		Error: &orchestrator.ErrorEvent{
			Kind:    orchestrator.ErrKindBadRequest,
			Message: message,
		},
	})
}

func mustNanoid() string {
	id, err := gonanoid.New()
	if err != nil {
		return uuid.NewString()
	}
	return id
}
