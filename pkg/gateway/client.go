package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/calloway/switchboard/pkg/orchestrator"
)

// clientFrame is what a connected client may send. The variant set is
// closed; anything else is rejected with an error frame.
type clientFrame struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

// serverFrame is one egress message. Seq is monotonic per connection so
// clients can detect reordering or loss.
type serverFrame struct {
	Seq       uint64 `json:"seq"`
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	SessionID string `json:"session_id"`

	Transcript *orchestrator.TranscriptEvent `json:"transcript,omitempty"`
	Tool       *orchestrator.ToolEvent       `json:"tool,omitempty"`
	Handoff    *orchestrator.HandoffEvent    `json:"handoff,omitempty"`
	Error      *orchestrator.ErrorEvent      `json:"error,omitempty"`
}

// frameKindSession announces the server-assigned session id after the
// upgrade completes
const frameKindSession = "session"

// client is one websocket connection bound to exactly one session
type client struct {
	id        string
	sessionID string
	conn      *websocket.Conn

	outbound  chan serverFrame
	seq       atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}

	connectedAt time.Time
}

func newClient(id, sessionID string, conn *websocket.Conn) *client {
	return &client{
		id:          id,
		sessionID:   sessionID,
		conn:        conn,
		outbound:    make(chan serverFrame, 64),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

// send queues a frame for the writer. A full buffer drops the frame
// rather than stalling the orchestrator's lane.
func (c *client) send(frame serverFrame) {
	frame.Seq = c.seq.Add(1)
	select {
	case c.outbound <- frame:
	case <-c.done:
	default:
		log.Warn().
			Str("client_id", c.id).
			Str("session_id", c.sessionID).
			Str("kind", frame.Kind).
			Msg("Outbound buffer full, frame dropped")
	}
}

// writeLoop is the connection's single writer
func (c *client) writeLoop() {
	for {
		select {
		case frame := <-c.outbound:
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Str("client_id", c.id).Msg("Write failed, closing connection")
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// registry maps session ids to live connections
type registry struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]*client)}
}

func (r *registry) add(c *client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.sessionID] = c
}

func (r *registry) remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sessionID)
}

func (r *registry) get(sessionID string) (*client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[sessionID]
	return c, ok
}

func (r *registry) all() []*client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
