package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metricsHandler())

	// Control routes keep their historical lower-case and short aliases.
	for _, path := range []string{"/setPowerState", "/setpowerstate", "/switch"} {
		r.Get(path, s.handleSetPowerState)
	}
	for _, path := range []string{"/setLightState", "/setlightstate", "/set"} {
		r.Get(path, s.handleSetLightState)
	}
	r.Get("/applyPreset/class", s.handleApplyPresetToClass)
	r.Post("/applyOptions", s.handleApplyOptions)

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Get("/stats", s.handleDeviceStats)
		r.Route("/{channel}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Get("/events", s.handleListDeviceEvents)
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth reports pool counts and the state of each dependency.
// Any failing dependency turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"devices":        s.pool.Stats(),
		"components":     components,
		"ws_clients":     s.hub.ClientCount(),
	})
}
