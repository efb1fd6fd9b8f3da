// Package handlers implements the HTTP endpoint handlers: download
// submission, job status, transcript extraction and the health probe tree.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkTimeout bounds each individual health check.
const checkTimeout = 2 * time.Second

// ErrDegraded marks a dependency that is absent or unconfigured rather
// than broken. Checks wrapping it degrade the aggregate status without
// failing readiness, so running without a proxy pool or object storage
// still serves traffic.
var ErrDegraded = errors.New("degraded")

// HealthChecker probes one dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body returned by the health endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers and aggregates their results.
type HealthManager struct {
	mu       sync.RWMutex
	version  string
	checkers map[string]HealthChecker
	started  time.Time
}

// NewHealthManager creates a manager reporting the given version string.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]HealthChecker),
		started:  time.Now(),
	}
}

// RegisterChecker adds a named dependency probe. Re-registering a name
// replaces the previous checker.
func (m *HealthManager) RegisterChecker(name string, c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// runChecks executes every checker with a per-check timeout.
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(checkCtx)
		cancel()

		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, ErrDegraded):
			results[name] = "degraded"
		case checkCtx.Err() == context.DeadlineExceeded:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
			zap.L().Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
	}
	return results
}

// determineOverallStatus aggregates check results. Any unhealthy check
// makes the whole service unhealthy; timeouts and degraded dependencies
// degrade but do not fail.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout", "degraded":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves the full readiness report: every checker runs and
// the aggregate decides between 200 and 503.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		writeServiceUnavailable(w, checks)
		return
	}
	m.writeHealth(w, status, checks)
}

// LivenessHandler reports process liveness only; dependency state is
// ignored so a broken dependency does not trigger a restart loop.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.writeHealth(w, "healthy", nil)
}

// ReadinessHandler is the Kubernetes readiness probe; same semantics as
// the full health report.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports whether the process finished booting.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.writeHealth(w, "healthy", nil)
}

func (m *HealthManager) writeHealth(w http.ResponseWriter, status string, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:    status,
		Version:   m.version,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func writeServiceUnavailable(w http.ResponseWriter, checks map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	body := map[string]any{
		"error": map[string]any{
			"code":    "SERVICE_UNAVAILABLE",
			"message": "one or more health checks failed",
			"details": map[string]any{
				"checks": checks,
			},
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}

// globalHealthManager backs the package-level handler functions used by
// route registration.
var globalHealthManager *HealthManager

// InitHealthManager installs the global manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global manager, or nil before init.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// HealthHandler serves /health through the global manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeServiceUnavailable(w, nil)
		return
	}
	globalHealthManager.HealthHandler(w, r)
}

// LivenessHandler serves /health/live through the global manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeServiceUnavailable(w, nil)
		return
	}
	globalHealthManager.LivenessHandler(w, r)
}

// ReadinessHandler serves /health/ready through the global manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeServiceUnavailable(w, nil)
		return
	}
	globalHealthManager.ReadinessHandler(w, r)
}

// StartupHandler serves /health/startup through the global manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	if globalHealthManager == nil {
		writeServiceUnavailable(w, nil)
		return
	}
	globalHealthManager.StartupHandler(w, r)
}

// APIHealthHandler serves the compact GET /api/health liveness probe kept
// for clients of the predecessor service.
func APIHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
