package handlers

import (
	"cmp"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/logging"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

const (
	statusOK       = "ok"
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

// HealthHandler serves the liveness and readiness checks. Readiness runs
// every registered checker: the metadata store, the storage backend, the
// remote auth server when configured, and the lifecycle supervisor, which
// fails once a drain begins.
type HealthHandler struct {
	registry ports.HealthRegistry
}

// NewHealthHandler creates a new HealthHandler with the given health registry.
func NewHealthHandler(registry ports.HealthRegistry) *HealthHandler {
	return &HealthHandler{registry: registry}
}

// CheckResult is one component's entry in the readiness response.
type CheckResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ReadinessResponse is the body of GET /health/ready.
type ReadinessResponse struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Liveness handles GET /health/live. Always returns 200 OK.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": statusOK})
}

// Readiness handles GET /health/ready. Returns 200 if all checks pass,
// 503 if any check fails. Checks are listed by name.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	results := h.registry.CheckAll(r.Context())

	resp := ReadinessResponse{Status: statusReady, Checks: make([]CheckResult, 0, len(results))}
	for name, err := range results {
		c := CheckResult{Name: name, Status: statusOK}
		if err != nil {
			c.Status = statusNotReady
			c.Error = err.Error()
			resp.Status = statusNotReady
		}
		resp.Checks = append(resp.Checks, c)
	}
	slices.SortFunc(resp.Checks, func(a, b CheckResult) int { return cmp.Compare(a.Name, b.Name) })

	code := http.StatusOK
	if resp.Status != statusReady {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, r, code, resp)
}

// Health bodies are JSON; S3 error documents never appear here.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", dto.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).WarnContext(r.Context(), "failed to encode health response",
			slog.Any("error", err),
		)
	}
}
