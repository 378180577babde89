package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/UndiFineD/obsidian-AI-assistant-sub001/internal/adapter/outbound/memory"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// DropCounter reports how many audit events a sink has dropped.
type DropCounter interface {
	Dropped() uint64
}

// HealthChecker verifies component health.
type HealthChecker struct {
	sessionStore *memory.SessionStore
	rateLimiter  *memory.RateLimiter
	auditDrops   DropCounter
	version      string
	started      time.Time
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	sessionStore *memory.SessionStore,
	rateLimiter *memory.RateLimiter,
	auditDrops DropCounter,
	version string,
) *HealthChecker {
	return &HealthChecker{
		sessionStore: sessionStore,
		rateLimiter:  rateLimiter,
		auditDrops:   auditDrops,
		version:      version,
		started:      time.Now(),
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)

	// Size() acquires the store lock - if this hangs, we have a problem
	if h.sessionStore != nil {
		checks["session_store"] = fmt.Sprintf("ok: %d active", h.sessionStore.Size())
	} else {
		checks["session_store"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["rate_limiter"] = fmt.Sprintf("ok: %d keys", h.rateLimiter.Size())
	} else {
		checks["rate_limiter"] = "not configured"
	}

	if h.auditDrops != nil {
		if drops := h.auditDrops.Dropped(); drops > 0 {
			checks["audit_drops"] = fmt.Sprintf("%d dropped", drops)
		} else {
			checks["audit_drops"] = "none"
		}
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	return HealthResponse{
		Status:  "healthy",
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}

// StatusHandler returns an HTTP handler for the /status endpoint: a
// lightweight public summary without component internals.
func (h *HealthChecker) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": h.version,
			"uptime":  time.Since(h.started).Truncate(time.Second).String(),
		})
	})
}
