package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/internal/router"
	"quizrelay/pkg/interfaces"
)

type frame struct {
	conn interfaces.Conn
	data []byte
}

// Hub serializes all message processing onto one goroutine. Inbound frames,
// disconnects and describer results go through buffered channels and are
// handled one at a time to completion, which is the whole concurrency model
// of the relay: handlers never observe each other mid-mutation.
type Hub struct {
	frames        chan frame
	disconnects   chan interfaces.Conn
	visionResults chan router.VisionResult
	shutdown      chan struct{}

	router *router.Router

	mu      sync.RWMutex
	running bool

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub over the given router and wires itself in as the
// router's vision sink.
func NewHub(r *router.Router, log *zap.Logger, m *metrics.Metrics) *Hub {
	h := &Hub{
		frames:        make(chan frame, 1000),
		disconnects:   make(chan interfaces.Conn, 100),
		visionResults: make(chan router.VisionResult, 100),
		shutdown:      make(chan struct{}),
		router:        r,
		log:           log,
		metrics:       m,
	}
	r.SetVisionSink(h)
	return h
}

// Start launches the processing goroutine.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	h.log.Info("hub started")
	go h.run(ctx)
	return nil
}

// Stop shuts the processing loop down.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}

	return nil
}

// Submit queues one inbound text frame. A full channel drops the frame;
// the sender gets no error, matching the relay's silent-drop contract.
func (h *Hub) Submit(conn interfaces.Conn, data []byte) {
	select {
	case h.frames <- frame{conn: conn, data: data}:
	default:
		h.metrics.MessagesDropped.Inc()
		h.log.Warn("frame dropped: hub backlog full")
	}
}

// Disconnect queues cleanup for a closed socket.
func (h *Hub) Disconnect(conn interfaces.Conn) {
	select {
	case h.disconnects <- conn:
	default:
		// Backlog full; clean up inline rather than leak the registration.
		h.router.Disconnect(conn)
	}
}

// SubmitVisionResult re-enqueues a describer outcome for serialized
// handling. Blocks rather than drops: losing a result would strand the
// client without its fallback.
func (h *Hub) SubmitVisionResult(result router.VisionResult) {
	select {
	case h.visionResults <- result:
	case <-h.shutdown:
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.log.Info("hub stopped")

	for {
		select {
		case f := <-h.frames:
			h.router.Route(f.conn, f.data)
		case conn := <-h.disconnects:
			h.router.Disconnect(conn)
		case result := <-h.visionResults:
			h.router.HandleVisionResult(result)
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}
