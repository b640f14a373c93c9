package relay

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/timerboard/go/internal/timers"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Service is the timer board relay: it owns the registry, the connection
// manager and the protocol router, and exposes them over HTTP.
type Service struct {
	registry          *timers.MemoryRegistry
	connectionManager *ConnectionManager
	router            *Router
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	mirror            Mirror
	cors              *cors.Cors
}

// ServiceOption customises NewService, mostly for tests
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock  clockwork.Clock
	mirror Mirror
}

// WithServiceClock replaces the real clock
func WithServiceClock(clock clockwork.Clock) ServiceOption {
	return func(o *serviceOptions) { o.clock = clock }
}

// WithMirror replaces the mirror built from config
func WithMirror(mirror Mirror) ServiceOption {
	return func(o *serviceOptions) { o.mirror = mirror }
}

// NewService creates a new relay service
func NewService(config Config, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	policy, err := timers.ParseDuplicatePolicy(config.DuplicatePolicy)
	if err != nil {
		return nil, err
	}

	mirror := o.mirror
	if mirror == nil {
		mirror, err = NewMirror(config.Mirror)
		if err != nil {
			return nil, fmt.Errorf("failed to create event mirror: %w", err)
		}
	}

	c := NewCORS(config.AllowedOrigins)
	connConfig := config.Connection
	if connConfig.CheckOrigin == nil {
		connConfig.CheckOrigin = checkOrigin(c)
	}

	registry := timers.NewMemoryRegistry(
		timers.WithClock(o.clock),
		timers.WithDuplicatePolicy(policy),
	)
	connectionManager := NewConnectionManager(connConfig)
	router := NewRouter(registry, connectionManager, mirror, o.clock)

	return &Service{
		registry:          registry,
		connectionManager: connectionManager,
		router:            router,
		wsHandler:         NewWebSocketHandler(connectionManager, router),
		stateHandler:      NewStateHandler(registry),
		mirror:            mirror,
		cors:              c,
	}, nil
}

// Start runs until ctx is cancelled, then closes client connections and the mirror
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting timer board relay")

	s.connectionManager.Start(ctx)

	log.Info().Msg("timer board relay shutting down")
	return s.Stop()
}

// Stop releases the mirror connection
func (s *Service) Stop() error {
	if err := s.mirror.Close(); err != nil {
		return fmt.Errorf("close event mirror: %w", err)
	}
	log.Info().Msg("timer board relay stopped")
	return nil
}

// Handler returns the relay's HTTP routes wrapped in the CORS policy
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", s.wsHandler.HandleBoardConnection)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
	r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.GetStats())
	})
	r.Route("/api/timers", func(r chi.Router) {
		r.Get("/", s.stateHandler.HandleGetTimers)
		r.Get("/{id}", s.stateHandler.HandleGetTimer)
	})

	return s.cors.Handler(r)
}

// GetStats returns statistics about the relay
func (s *Service) GetStats() map[string]interface{} {
	stats := map[string]interface{}{
		"service":           "timerboard-relay",
		"status":            "running",
		"total_connections": s.connectionManager.ConnectionCount(),
		"timers":            s.registry.Len(),
	}
	if jm, ok := s.mirror.(*JetStreamMirror); ok {
		stats["nats_connected"] = jm.Connected()
	}
	return stats
}
