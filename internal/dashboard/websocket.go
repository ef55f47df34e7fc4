package dashboard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSMessage is the discriminated-union envelope broadcast to every connected
// dashboard client whenever the store changes underneath it.
type WSMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
}

const (
	WSTypeTaskChanged      = "TaskChanged"
	WSTypeEventAdded       = "EventAdded"
	WSTypeWorkspaceChanged = "WorkspaceChanged"
	WSTypeHello            = "Hello"
)

// connection wraps one accepted WebSocket with the mutex gorilla/websocket
// requires around concurrent writes.
type connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *connection) send(msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}

// hub is the connection registry and broadcaster: a map guarded by a
// mutex, with add/remove/broadcast as the only operations, plus a channel
// feeding broadcast from HTTP handlers into the hub's own goroutine.
type hub struct {
	mu      sync.RWMutex
	conns   map[string]*connection
	publish chan WSMessage
}

func newHub() *hub {
	return &hub{
		conns:   make(map[string]*connection),
		publish: make(chan WSMessage, 64),
	}
}

func (h *hub) add(id string, c *connection) {
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// broadcast queues msg for delivery to every connected client. Non-blocking:
// a full queue drops the message rather than stall the caller, since dashboard
// pushes are best-effort nudges, not a delivery-guaranteed log.
func (h *hub) broadcast(msg WSMessage) {
	select {
	case h.publish <- msg:
	default:
	}
}

// run drains the publish channel and fans each message out to every
// connection, pruning any that error.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.publish:
			h.mu.RLock()
			targets := make(map[string]*connection, len(h.conns))
			for id, c := range h.conns {
				targets[id] = c
			}
			h.mu.RUnlock()

			for id, c := range targets {
				if err := c.send(msg); err != nil {
					h.remove(id)
					_ = c.ws.Close()
				}
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// generateConnID returns a short random hex id for a connection or message.
func generateConnID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "ws_" + hex.EncodeToString(b)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id := generateConnID()
	conn := &connection{ws: ws}
	s.hub.add(id, conn)
	s.logger.Info().Str("conn_id", id).Msg("websocket connected")

	_ = conn.send(WSMessage{ID: id, Type: WSTypeHello, Timestamp: time.Now().UTC().Format(time.RFC3339)})

	defer func() {
		s.hub.remove(id)
		_ = ws.Close()
		s.logger.Info().Str("conn_id", id).Msg("websocket disconnected")
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// notify builds a timestamped WSMessage and queues it on the hub.
func (s *Server) notify(msgType string, payload any) {
	s.hub.broadcast(WSMessage{
		ID:        generateConnID(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// cliNotification is the body posted by the CLI's best-effort notifier
// (internal/commands/notify.go) after a mutating command commits.
type cliNotification struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleCLINotify(c *gin.Context) {
	var n cliNotification
	if err := json.NewDecoder(c.Request.Body).Decode(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid notification body"})
		return
	}
	s.notify(n.Type, n.Payload)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
