package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/internal/router"
	"quizrelay/internal/screenshot"
	"quizrelay/internal/store"
	"quizrelay/internal/websocket"
	"quizrelay/pkg/types"
)

type fakeConn struct {
	mu         sync.Mutex
	role       string
	clientID   string
	roomID     string
	identified bool
	alive      bool
	closed     bool
}

func (f *fakeConn) WriteJSON(v interface{}) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) Ping() error { return nil }

func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConn) ClearAlive() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
}

func (f *fakeConn) SetIdentity(role, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.role = role
	f.clientID = id
	f.identified = true
	return nil
}

func (f *fakeConn) Identified() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identified
}

func (f *fakeConn) Role() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

func (f *fakeConn) ClientID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clientID
}

func (f *fakeConn) RoomID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roomID
}

func (f *fakeConn) SetRoomID(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomID = roomID
}

func newTestHub(t *testing.T) (*Hub, *websocket.Registry) {
	t.Helper()

	log := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())
	registry := websocket.NewRegistry(log, m)
	testStore := store.NewStore(log, m)
	rooms := store.NewRooms(5*time.Minute, 100, log)

	shots, err := screenshot.NewStore(t.TempDir(), "/screenshots/", log, m)
	if err != nil {
		t.Fatalf("screenshot store: %v", err)
	}

	r := router.NewRouter(registry, testStore, rooms, shots, nil, log, m)
	return NewHub(r, log, m), registry
}

func TestHub_StartStop(t *testing.T) {
	h, _ := newTestHub(t)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Start(context.Background()); err != ErrHubAlreadyRunning {
		t.Errorf("expected ErrHubAlreadyRunning, got %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_SubmitRoutesFrame(t *testing.T) {
	h, registry := newTestHub(t)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	conn := &fakeConn{alive: true}
	h.Submit(conn, []byte(`{"type":"helper_connect","helperId":"H1"}`))

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := registry.Lookup(types.RoleHelper, "H1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("submitted frame never routed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, registry := newTestHub(t)

	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.Stop()

	conn := &fakeConn{alive: true}
	h.Submit(conn, []byte(`{"type":"helper_connect","helperId":"H1"}`))

	deadline := time.Now().Add(time.Second)
	for {
		if _, ok := registry.Lookup(types.RoleHelper, "H1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connect never routed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Disconnect(conn)

	deadline = time.Now().Add(time.Second)
	for {
		if _, ok := registry.Lookup(types.RoleHelper, "H1"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect never processed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_SubmitVisionResultUnblocksOnShutdown(t *testing.T) {
	h, _ := newTestHub(t)
	// Never started; the loop is not draining.
	for i := 0; i < cap(h.visionResults); i++ {
		h.visionResults <- router.VisionResult{}
	}

	done := make(chan struct{})
	go func() {
		h.SubmitVisionResult(router.VisionResult{})
		close(done)
	}()

	close(h.shutdown)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SubmitVisionResult stayed blocked through shutdown")
	}
}
