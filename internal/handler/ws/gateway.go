package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
	agentService "github.com/shodhai/speaking-agent/backend/internal/service/agent"
)

// closeAgentNotFound is sent when the requested agent does not exist.
// Application close codes live in the 4000-4999 range.
const closeAgentNotFound = 4004

// Gateway upgrades HTTP requests to websocket connections bound to one
// agent session each. A connection feeds client input into the session
// and relays the session's event stream back out.
type Gateway struct {
	registry     *agentService.Registry
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// New builds the gateway.
func New(registry *agentService.Registry, cfg config.AgentConfig) *Gateway {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Gateway{
		registry:     registry,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws/agents/{agentID}", g.handleConnection)
}

// inboundMessage is the flat client wire format: base64 PCM bytes ride
// in audio, finalized utterances in text.
type inboundMessage struct {
	Type      string `json:"type"`
	Audio     []byte `json:"audio,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// wsConn serializes writes; the writer pump, the reader's direct
// replies, and the ping loop all share the connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeEvent(event agent.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(event)
}

func (c *wsConn) writeClose(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	message := websocket.FormatCloseMessage(code, reason)
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	c.conn.WriteMessage(websocket.CloseMessage, message)
}

func (c *wsConn) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// handleConnection runs one websocket connection to completion. The
// session lookup happens after the upgrade so the close code reaches
// the client instead of an opaque HTTP error.
func (g *Gateway) handleConnection(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	raw, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	session, ok := g.registry.Get(agentID)
	if !ok {
		conn.writeEvent(agent.NewEvent(agent.EventError, "agent not found"))
		conn.writeClose(closeAgentNotFound, "agent not found")
		return
	}

	log.Printf("[ws] connection opened agent=%s remote=%s", agentID, r.RemoteAddr)

	conn.writeEvent(agent.NewEvent(agent.EventStatus, "connected"))

	sub := session.Attach()
	defer session.Detach(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.writePump(ctx, conn, sub)
	go g.pingLoop(ctx, conn)

	g.readLoop(conn, session)
	log.Printf("[ws] connection closed agent=%s", agentID)
}

// readLoop consumes client messages until the connection drops. A bad
// message yields an error event, never a disconnect. One missed pong is
// tolerated: the read window spans two ping intervals plus slack, so
// only a connection with no pong and no traffic at all gets torn down.
func (g *Gateway) readLoop(conn *wsConn, session *agentService.Session) {
	readWindow := 2*g.pingInterval + 10*time.Second

	conn.conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.conn.SetPongHandler(func(string) error {
		conn.conn.SetReadDeadline(time.Now().Add(readWindow))
		return nil
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("[ws] no pong or traffic within %s, closing connection", readWindow)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws] read error: %v", err)
			}
			return
		}
		conn.conn.SetReadDeadline(time.Now().Add(readWindow))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.writeEvent(agent.NewEvent(agent.EventError, "malformed message"))
			continue
		}

		g.handleMessage(conn, session, &msg)
	}
}

func (g *Gateway) handleMessage(conn *wsConn, session *agentService.Session, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		if len(msg.Audio) == 0 {
			return
		}
		session.IngestAudio(msg.Audio)
	case "text":
		session.IngestText(msg.Text)
	case "ping":
		pong := agent.Event{Type: agent.EventPong, Timestamp: msg.Timestamp}
		if pong.Timestamp == 0 {
			pong.Timestamp = time.Now().Unix()
		}
		conn.writeEvent(pong)
	default:
		conn.writeEvent(agent.NewEvent(agent.EventError, "unsupported message type: "+msg.Type))
	}
}

// writePump relays session events to the client. The subscription
// channel closing means the session is gone; the client gets a normal
// close and the connection is torn down.
func (g *Gateway) writePump(ctx context.Context, conn *wsConn, sub *agentService.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				conn.writeClose(websocket.CloseNormalClosure, "session closed")
				conn.conn.Close()
				return
			}
			if err := conn.writeEvent(event); err != nil {
				log.Printf("[ws] write failed: %v", err)
				return
			}
		}
	}
}

// pingLoop keeps intermediaries from timing out an otherwise quiet
// connection.
func (g *Gateway) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.writePing(); err != nil {
				return
			}
		}
	}
}
