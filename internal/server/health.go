package server

import (
	"context"
	"net/http"
	"time"

	"r2-share/internal/storage"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

const (
	storeHealthTimeout = 5 * time.Second
	storeSlowLatency   = 2 * time.Second
)

// HandleHealth serves GET /-/health. It answers 503 when the store is
// down and 200 otherwise, including when degraded.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// checkHealth performs health checks on all components
func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.version,
		Components: make(map[string]ComponentHealth),
	}

	if s.store != nil {
		health.Components["store"] = s.checkStoreHealth(ctx)
	}

	health.Status = determineOverallHealth(health.Components)
	return health
}

// checkStoreHealth checks that the bucket is reachable.
func (s *Server) checkStoreHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, storeHealthTimeout)
	defer cancel()

	var details any
	if br, ok := s.store.(breakerReporter); ok {
		details = br.Breaker().Stats()
	}

	if err := s.store.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "store unreachable",
			Details: details,
		}
	}

	latency := time.Since(start)
	status := ComponentStatusUp
	message := "store healthy"
	if latency > storeSlowLatency {
		status = ComponentStatusDegraded
		message = "store latency high"
	}
	if br, ok := s.store.(breakerReporter); ok && br.Breaker().State() != storage.StateClosed {
		status = ComponentStatusDegraded
		message = "store circuit not closed"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency.Milliseconds()),
		Details:   details,
	}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var (
		downCount     int
		degradedCount int
	)

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

