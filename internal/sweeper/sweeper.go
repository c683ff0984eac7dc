package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quizrelay/internal/config"
	"quizrelay/internal/metrics"
	"quizrelay/internal/store"
	"quizrelay/internal/websocket"
)

// Sweeper runs the relay's two maintenance timers: a liveness sweep that
// reaps sockets which stopped answering pings, and a retention sweep that
// evicts tests past their age threshold. Neither sweep can fail in a way a
// caller sees; misses are no-ops.
type Sweeper struct {
	registry *websocket.Registry
	store    *store.Store
	cfg      *config.RetentionConfig

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewSweeper creates a sweeper over the registry and test store.
func NewSweeper(
	registry *websocket.Registry,
	testStore *store.Store,
	cfg *config.RetentionConfig,
	log *zap.Logger,
	m *metrics.Metrics,
) *Sweeper {
	return &Sweeper{
		registry: registry,
		store:    testStore,
		cfg:      cfg,
		log:      log,
		metrics:  m,
	}
}

// Start runs both timers until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.runLiveness(ctx)
	go s.runRetention(ctx)
}

func (s *Sweeper) runLiveness(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepLiveness()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) runRetention(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetentionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepRetention()
		case <-ctx.Done():
			return
		}
	}
}

// SweepLiveness closes and unregisters every socket that has not answered
// since the previous sweep, then marks the survivors unviewed and pings
// them. A socket that misses one full interval is gone by the next.
func (s *Sweeper) SweepLiveness() {
	reaped := 0
	for _, conn := range s.registry.All() {
		if !conn.Alive() {
			s.registry.Unregister(conn)
			_ = conn.Close()
			reaped++
			continue
		}

		conn.ClearAlive()
		if err := conn.Ping(); err != nil {
			s.log.Debug("ping failed",
				zap.String("role", conn.Role()),
				zap.String("id", conn.ClientID()),
				zap.Error(err))
		}
	}

	if reaped > 0 {
		s.metrics.SocketsReaped.Add(float64(reaped))
		s.log.Info("liveness sweep reaped sockets", zap.Int("count", reaped))
	}
}

// SweepRetention evicts tests older than the configured threshold.
func (s *Sweeper) SweepRetention() {
	if removed := s.store.SweepExpired(s.cfg.TestMaxAge); removed > 0 {
		s.log.Info("retention sweep removed tests", zap.Int("count", removed))
	}
}
