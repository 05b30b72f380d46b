package ws

import (
	"context"
	"encoding/binary"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/shodhai/speaking-agent/backend/internal/config"
	"github.com/shodhai/speaking-agent/backend/internal/model/agent"
	agentService "github.com/shodhai/speaking-agent/backend/internal/service/agent"
	"github.com/shodhai/speaking-agent/backend/internal/service/transcribe"
)

type echoResponder struct{}

func (echoResponder) Respond(_ context.Context, _ agent.Role, _ []agent.Turn, userText string) (string, error) {
	return "echo " + userText, nil
}

func (echoResponder) Greeting(agent.Role) string {
	return "Hello! I'm your AI conversation partner."
}

func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		EnergyThreshold: 0.01,
		SilenceFrames:   10,
		SilenceWindow:   5 * time.Second,
		IdleWindow:      time.Minute,
		ReapInterval:    time.Second,
		PingInterval:    time.Second,
	}
}

func setupGateway(t *testing.T) (*httptest.Server, *agentService.Registry) {
	t.Helper()

	registry := agentService.NewRegistry(func() transcribe.Transcriber {
		return transcribe.NewSimulator()
	}, echoResponder{}, testAgentConfig())
	t.Cleanup(registry.CloseAll)

	gateway := New(registry, testAgentConfig())
	r := chi.NewRouter()
	gateway.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dialAgent(t *testing.T, srv *httptest.Server, agentID string) *websocket.Conn {
	t.Helper()
	url := strings.Replace(srv.URL, "http", "ws", 1) + "/ws/agents/" + agentID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) agent.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev agent.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestConnectSendsAckAndWelcome(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "Student")

	conn := dialAgent(t, srv, session.ID())

	if ev := readEvent(t, conn); ev.Type != agent.EventStatus || ev.Text != "connected" {
		t.Fatalf("expected connected status, got %+v", ev)
	}
	if ev := readEvent(t, conn); ev.Type != agent.EventWelcome {
		t.Fatalf("expected welcome, got %+v", ev)
	}
}

func TestUnknownAgentClosedWithApplicationCode(t *testing.T) {
	srv, _ := setupGateway(t)

	conn := dialAgent(t, srv, "missing")

	if ev := readEvent(t, conn); ev.Type != agent.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != closeAgentNotFound {
		t.Fatalf("expected close code %d, got %d", closeAgentNotFound, closeErr.Code)
	}
}

func TestTextMessageYieldsResponse(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "")

	conn := dialAgent(t, srv, session.ID())
	readEvent(t, conn) // connected
	readEvent(t, conn) // welcome

	msg := map[string]any{"type": "text", "text": "Hello"}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write text: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != agent.EventResponse || ev.Text != "echo Hello" {
		t.Fatalf("expected echoed response, got %+v", ev)
	}
}

func TestAudioMessageFeedsSession(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "")

	conn := dialAgent(t, srv, session.ID())
	readEvent(t, conn) // connected
	readEvent(t, conn) // welcome

	frame := make([]byte, 512)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(16000*math.Sin(float64(i)/8))))
	}

	// JSON marshals the byte slice as base64, matching the wire format.
	msg := map[string]any{"type": "audio", "audio": frame}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	for i := 0; i < 5; i++ {
		ev := readEvent(t, conn)
		if ev.Type == agent.EventTranscript {
			if ev.Text == "" {
				t.Fatal("transcript event with empty text")
			}
			return
		}
	}
	t.Fatal("no transcript event received for speech audio")
}

func TestPingEchoesTimestamp(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "")

	conn := dialAgent(t, srv, session.ID())
	readEvent(t, conn) // connected
	readEvent(t, conn) // welcome

	msg := map[string]any{"type": "ping", "timestamp": 1234567890}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ev := readEvent(t, conn)
	if ev.Type != agent.EventPong || ev.Timestamp != 1234567890 {
		t.Fatalf("expected pong with echoed timestamp, got %+v", ev)
	}
}

func TestMalformedMessageIsNonFatal(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "")

	conn := dialAgent(t, srv, session.ID())
	readEvent(t, conn) // connected
	readEvent(t, conn) // welcome

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != agent.EventError {
		t.Fatalf("expected error event, got %+v", ev)
	}

	// The connection still works after the bad message.
	msg := map[string]any{"type": "unsupported"}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write after garbage: %v", err)
	}
	if ev := readEvent(t, conn); ev.Type != agent.EventError {
		t.Fatalf("expected error event for unsupported type, got %+v", ev)
	}
}

func TestSessionRemovalClosesConnection(t *testing.T) {
	srv, registry := setupGateway(t)
	session, _ := registry.Create(agent.RoleLanguagePartner, "", "")

	conn := dialAgent(t, srv, session.ID())
	readEvent(t, conn) // connected
	readEvent(t, conn) // welcome

	registry.Remove(session.ID())

	if ev := readEvent(t, conn); ev.Type != agent.EventShutdown {
		t.Fatalf("expected shutdown event, got %+v", ev)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.CloseNormalClosure {
		t.Fatalf("expected close code 1000, got %d", closeErr.Code)
	}
}
