package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/internal/screenshot"
	"quizrelay/internal/store"
	"quizrelay/internal/websocket"
	"quizrelay/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *store.Store, string) {
	t.Helper()

	log := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	connRegistry := websocket.NewRegistry(log, m)
	testStore := store.NewStore(log, m)
	rooms := store.NewRooms(5*time.Minute, 100, log)

	dir := t.TempDir()
	shots, err := screenshot.NewStore(dir, "/screenshots/", log, m)
	if err != nil {
		t.Fatalf("screenshot store: %v", err)
	}

	return NewServer(connRegistry, testStore, rooms, shots, registry, log), testStore, dir
}

func TestServer_Status(t *testing.T) {
	srv, testStore, _ := newTestServer(t)
	testStore.SaveTest("H1", "https://quiz.example", "", []types.Question{{ID: "q1"}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "active" {
		t.Errorf("status field: %q", resp.Status)
	}
	if resp.Tests != 1 {
		t.Errorf("tests: %d", resp.Tests)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status field: %q", resp.Status)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty metrics exposition")
	}
}

func TestServer_ServesSavedScreenshot(t *testing.T) {
	srv, _, dir := newTestServer(t)

	name := "H1-1700000000000-1.png"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screenshots/"+name, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code: %d", rec.Code)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("body mismatch: %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type: %q", got)
	}
}

func TestServer_ScreenshotRejectsTraversal(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, path := range []string{
		"/screenshots/..%2Fserver.go",
		"/screenshots/..",
		"/screenshots/x%5Cy.png",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code == http.StatusOK {
			t.Errorf("%s should not resolve", path)
		}
	}
}

func TestServer_UnknownScreenshotIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/screenshots/missing.png", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code: %d", rec.Code)
	}
}
