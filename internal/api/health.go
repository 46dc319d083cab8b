package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 3 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Executors int               `json:"executors"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every dependency check. Any failure turns the
// response into 503 so orchestrators stop routing to the instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Version:   s.version,
		Executors: s.executors.Len(),
	}
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for _, hc := range s.checks {
		if err := hc.Check(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[hc.Name] = err.Error()
			s.logger.Warn("health check failed", "check", hc.Name, "error", err)
			continue
		}
		resp.Checks[hc.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
