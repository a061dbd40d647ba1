package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jowe81/ll-kasa-bridge-sub001/internal/command"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/device"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/filter"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/config"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/infrastructure/logging"
	"github.com/jowe81/ll-kasa-bridge-sub001/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DevicePool is the part of *device.Pool the API drives.
type DevicePool interface {
	SetPowerState(ctx context.Context, ch int, on bool) error
	SetLightState(ctx context.Context, ch int, cmd command.Command) error
	ApplyPresetToClass(ctx context.Context, className, presetID, source string, suspend, resume bool) (*device.BatchResult, error)
	ApplyOptionsTo(tt device.TargetType, id string, opts filter.Options) (int, error)
	Snapshots() []device.Snapshot
	Snapshot(ch int) (device.Snapshot, error)
	Stats() device.Stats
}

// EventHistory reads the device event log. *telemetry.EventLog satisfies it.
type EventHistory interface {
	ListByChannel(ctx context.Context, channel, limit int) ([]telemetry.Entry, error)
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Pool    DevicePool
	History EventHistory             // optional; /devices/{channel}/events answers 503 without it
	Checks  map[string]HealthChecker // optional; reported by /health
	Metrics prometheus.Gatherer      // optional; /metrics answers 404 without it
	Hub     *Hub                     // if set, the server uses this hub instead of creating its own
	Version string
}

// Server is the HTTP API server for the Kasa bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	pool      DevicePool
	history   EventHistory
	checks    map[string]HealthChecker
	metrics   prometheus.Gatherer
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	ownsHub   bool
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The hub's command
// handler is pointed at the pool.
//
// Parameters:
//   - deps: Logger and Pool are required; a Hub is created when none is given
//
// Returns:
//   - *Server: Configured server
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("device pool is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		pool:      deps.Pool,
		history:   deps.History,
		checks:    deps.Checks,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.ownsHub = true
	}
	s.hub.SetCommandHandler(s.executeCommand)

	return s, nil
}

// Hub returns the WebSocket hub. It implements device.Broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.ownsHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running.
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
