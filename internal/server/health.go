package server

import (
	"encoding/json"
	"net/http"
	"time"

	"mail-spool/internal/spool"
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

// slowSpoolThreshold marks the spool degraded when the probe is slower.
const slowSpoolThreshold = time.Second

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
}

// HandleHealth reports whether the spool directory is usable. Unhealthy
// answers 503 so load balancers stop routing producers here.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth()

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	respondJSON(w, statusCode, health)
}

// checkHealth runs all component checks
func (s *Server) checkHealth() Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.version,
		Components: make(map[string]ComponentHealth),
	}

	health.Components["spool"] = s.checkSpoolHealth()
	health.Status = determineOverallHealth(health.Components)

	return health
}

// checkSpoolHealth probes the spool directory with an exclusive-create.
// The message never includes the directory path.
func (s *Server) checkSpoolHealth() ComponentHealth {
	start := time.Now()
	err := s.store.Check()
	latency := time.Since(start)

	if err != nil {
		s.metrics.RecordStoreError("check", err)
		s.log.Error("spool check failed", nil, err)

		msg := "spool check failed"
		if spool.IsDirectoryUnavailable(err) {
			msg = "spool directory unavailable"
		}
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: msg,
		}
	}

	status := ComponentStatusUp
	message := "spool healthy"
	if latency > slowSpoolThreshold {
		status = ComponentStatusDegraded
		message = "spool latency high"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency.Microseconds()) / 1000,
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

// respondJSON writes v as a JSON body with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
