package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizrelay/internal/config"
	"quizrelay/pkg/interfaces"
)

// recordingSink captures everything the transport hands up.
type recordingSink struct {
	mu          sync.Mutex
	frames      [][]byte
	disconnects int
}

func (s *recordingSink) Submit(conn interfaces.Conn, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append([]byte(nil), data...))
}

func (s *recordingSink) Disconnect(conn interfaces.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) disconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

func wsConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		BufferSize:   16,
	}
}

func dialTestHandler(t *testing.T, sink Sink) *websocket.Conn {
	t.Helper()

	h := NewHandler(wsConfig(), sink, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func TestHandler_TextFramesReachSink(t *testing.T) {
	sink := &recordingSink{}
	conn := dialTestHandler(t, sink)

	payload := `{"type":"helper_connect","helperId":"H1"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for sink.frameCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never reached the sink")
		}
		time.Sleep(5 * time.Millisecond)
	}

	sink.mu.Lock()
	got := string(sink.frames[0])
	sink.mu.Unlock()
	if got != payload {
		t.Errorf("frame mutated in transit: %q", got)
	}
}

func TestHandler_BinaryFramesIgnored(t *testing.T) {
	sink := &recordingSink{}
	conn := dialTestHandler(t, sink)

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x1, 0x2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"x"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for sink.frameCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("text frame never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if sink.frameCount() != 1 {
		t.Errorf("binary frame leaked through, got %d frames", sink.frameCount())
	}
}

func TestHandler_DisconnectOnClose(t *testing.T) {
	sink := &recordingSink{}
	conn := dialTestHandler(t, sink)

	conn.Close()

	deadline := time.Now().Add(time.Second)
	for sink.disconnectCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("disconnect never reported")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnection_WriteJSONDeliversFrame(t *testing.T) {
	sink := &recordingSink{}

	var serverConn interfaces.Conn
	ready := make(chan struct{})
	wrapped := &captureSink{inner: sink, onSubmit: func(c interfaces.Conn) {
		serverConn = c
		close(ready)
	}}

	conn := dialTestHandler(t, wrapped)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("server side never surfaced the connection")
	}

	if err := serverConn.WriteJSON(map[string]string{"type": "pong_frame"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type != "pong_frame" {
		t.Errorf("unexpected frame: %s (%v)", data, err)
	}
}

func TestConnection_WriteAfterCloseFails(t *testing.T) {
	sink := &recordingSink{}

	var serverConn interfaces.Conn
	ready := make(chan struct{})
	wrapped := &captureSink{inner: sink, onSubmit: func(c interfaces.Conn) {
		serverConn = c
		close(ready)
	}}

	conn := dialTestHandler(t, wrapped)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("server side never surfaced the connection")
	}

	serverConn.Close()

	if err := serverConn.WriteJSON(map[string]string{"type": "late"}); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if err := serverConn.Ping(); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed from Ping, got %v", err)
	}
}

func TestConnection_IdentityClaimedOnce(t *testing.T) {
	c := &Connection{}

	if err := c.SetIdentity("helper", "H1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := c.SetIdentity("admin", "A1"); err != ErrAlreadyIdentified {
		t.Errorf("expected ErrAlreadyIdentified, got %v", err)
	}

	if c.Role() != "helper" || c.ClientID() != "H1" {
		t.Errorf("identity mutated by rejected claim: %s/%s", c.Role(), c.ClientID())
	}
}

// captureSink lets a test grab the server-side connection on first frame.
type captureSink struct {
	inner    Sink
	once     sync.Once
	onSubmit func(interfaces.Conn)
}

func (s *captureSink) Submit(conn interfaces.Conn, data []byte) {
	s.once.Do(func() { s.onSubmit(conn) })
	s.inner.Submit(conn, data)
}

func (s *captureSink) Disconnect(conn interfaces.Conn) {
	s.inner.Disconnect(conn)
}
