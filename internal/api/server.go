// Package api provides the HTTP REST API and WebSocket status stream
// for Ember Core.
//
// It exposes health, controller status, mode switching, on-demand
// retraining, model inspection and a CSV export of the training log.
// The API is consumed by the host automation platform and by whatever
// dashboard the installer points at it; there is no user model, the
// host is trusted.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/embercore/ember-core/internal/controller"
	"github.com/embercore/ember-core/internal/infrastructure/config"
	"github.com/embercore/ember-core/internal/infrastructure/logging"
	"github.com/embercore/ember-core/internal/model"
	"github.com/embercore/ember-core/internal/statebus"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ControlAPI is the slice of the controller the API exposes.
type ControlAPI interface {
	StatusInfo() controller.StatusInfo
	SetMode(ctx context.Context, mode controller.Mode) error
	RequestRetrain() string
}

// TrainingStore is the slice of the training log the API exposes.
type TrainingStore interface {
	Count(ctx context.Context) (int, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// ModelSource supplies the installed model for inspection.
type ModelSource interface {
	Current() *model.Model
}

// StateReader supplies last-known entity state for status reporting.
type StateReader interface {
	ReadState(entityID string) (statebus.Event, bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config         config.APIConfig
	WS             config.WebSocketConfig
	Logger         *logging.Logger
	Controller     ControlAPI
	Store          TrainingStore
	Models         ModelSource
	States         StateReader
	TargetEntityID string
	Version        string
}

// Server is the HTTP API server for Ember Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	controller   ControlAPI
	store        TrainingStore
	models       ModelSource
	states       StateReader
	targetEntity string
	version      string
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("training store is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		controller:   deps.Controller,
		store:        deps.Store,
		models:       deps.Models,
		states:       deps.States,
		targetEntity: deps.TargetEntityID,
		version:      deps.Version,
	}, nil
}

// Hub returns the WebSocket hub, available after Start(). The
// controller's status listener broadcasts through it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
