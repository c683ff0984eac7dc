package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"quizrelay/internal/api"
	"quizrelay/internal/config"
	"quizrelay/internal/hub"
	"quizrelay/internal/metrics"
	"quizrelay/internal/router"
	"quizrelay/internal/screenshot"
	"quizrelay/internal/store"
	"quizrelay/internal/sweeper"
	"quizrelay/internal/vision"
	"quizrelay/internal/websocket"
	"quizrelay/pkg/interfaces"
)

// Application wires every relay component together. Initialization order:
// metrics -> stores -> registry -> router -> hub -> handler -> sweeper ->
// HTTP.
type Application struct {
	config     *config.Config
	registry   *websocket.Registry
	store      *store.Store
	rooms      *store.Rooms
	messageHub *hub.Hub
	sweeper    *sweeper.Sweeper
	httpServer *http.Server

	log *zap.Logger
}

// NewApplication builds the relay from a validated configuration.
func NewApplication(cfg *config.Config, log *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promRegistry)

	testStore := store.NewStore(log, m)
	rooms := store.NewRooms(cfg.Retention.RoomGrace, cfg.Retention.ChatLogCap, log)

	shots, err := screenshot.NewStore(cfg.Screenshot.Dir, cfg.Screenshot.URLPrefix, log, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize screenshot store: %w", err)
	}

	registry := websocket.NewRegistry(log, m)

	var describer interfaces.Describer
	if visionClient := vision.NewClient(cfg.Vision.Endpoint, cfg.Vision.APIKey, cfg.Vision.Timeout, log); visionClient.Enabled() {
		describer = visionClient
	} else {
		log.Info("vision endpoint not configured, every screenshot goes to a human")
	}

	messageRouter := router.NewRouter(registry, testStore, rooms, shots, describer, log, m)
	messageHub := hub.NewHub(messageRouter, log, m)
	wsHandler := websocket.NewHandler(cfg.WebSocket, messageHub, log)
	expirySweeper := sweeper.NewSweeper(registry, testStore, cfg.Retention, log, m)
	apiServer := api.NewServer(registry, testStore, rooms, shots, promRegistry, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", apiServer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		registry:   registry,
		store:      testStore,
		rooms:      rooms,
		messageHub: messageHub,
		sweeper:    expirySweeper,
		httpServer: httpServer,
		log:        log,
	}, nil
}

// Start brings the hub and sweeper up, then the HTTP listener.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info("starting relay", zap.String("addr", app.httpServer.Addr))

	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	app.sweeper.Start(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.messageHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info("relay started")
		return nil
	case <-ctx.Done():
		_ = app.messageHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts the listener down first so no new frames arrive, then the hub.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info("shutting down relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warn("http shutdown error", zap.Error(err))
	}
	if err := app.messageHub.Stop(); err != nil {
		app.log.Warn("hub shutdown error", zap.Error(err))
	}

	app.log.Info("relay shutdown complete")
	return nil
}

// Addr returns the listener address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
