package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quizrelay/internal/screenshot"
	"quizrelay/internal/store"
	"quizrelay/internal/websocket"
	"quizrelay/pkg/types"
)

// Server is the read-only HTTP surface next to the WebSocket endpoint:
// status counters, health, prometheus metrics and the saved screenshot
// files referenced by new_screenshot_for_helper frames.
type Server struct {
	registry *websocket.Registry
	store    *store.Store
	rooms    *store.Rooms
	shots    *screenshot.Store
	gatherer prometheus.Gatherer
	router   *httprouter.Router

	log *zap.Logger
}

// StatusResponse mirrors the original relay's /status payload.
type StatusResponse struct {
	Status    string    `json:"status"`
	Helpers   int       `json:"helpers"`
	Admins    int       `json:"admins"`
	Tests     int       `json:"tests"`
	Rooms     int       `json:"rooms"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is the health probe payload.
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Connections map[string]int `json:"connections"`
}

// NewServer wires the routes.
func NewServer(
	registry *websocket.Registry,
	testStore *store.Store,
	rooms *store.Rooms,
	shots *screenshot.Store,
	gatherer prometheus.Gatherer,
	log *zap.Logger,
) *Server {
	s := &Server{
		registry: registry,
		store:    testStore,
		rooms:    rooms,
		shots:    shots,
		gatherer: gatherer,
		router:   httprouter.New(),
		log:      log,
	}

	s.router.GET("/status", s.serveStatus)
	s.router.GET("/healthz", s.serveHealth)
	s.router.GET("/screenshots/:name", s.serveScreenshot)
	s.router.Handler(http.MethodGet, "/metrics",
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) serveStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats := s.registry.Stats()
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Status:    "active",
		Helpers:   stats[types.RoleHelper] + stats[types.RoleStudent],
		Admins:    stats[types.RoleAdmin],
		Tests:     s.store.Count(),
		Rooms:     s.rooms.Count(),
		Timestamp: time.Now(),
	})
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		Connections: s.registry.Stats(),
	})
}

func (s *Server) serveScreenshot(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	name := p.ByName("name")

	// Names come from our own save path; anything that could escape the
	// directory is rejected outright.
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeFile(w, r, filepath.Join(s.shots.Dir(), name))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", zap.Error(err))
	}
}
