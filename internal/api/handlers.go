package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/cross19xx/eas-build/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers contains HTTP handler functions
type Handlers struct {
	logger    *zap.Logger
	version   string
	commit    string
	buildTime string
	startedAt time.Time
}

// NewHandlers creates new Handlers instance
func NewHandlers(logger *zap.Logger, version, commit, buildTime string) *Handlers {
	return &Handlers{
		logger:    logger,
		version:   version,
		commit:    commit,
		buildTime: buildTime,
		startedAt: time.Now(),
	}
}

// ErrorResponse represents RFC 7807 Problem Details format
type ErrorResponse struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Extra    map[string]interface{} `json:"extra,omitempty"`
}

// Health handles GET /health endpoint
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Version handles GET /version endpoint
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"version":    h.version,
		"commit":     h.commit,
		"build_time": h.buildTime,
		"go_version": runtime.Version(),
	})
}

// Metrics handles GET /metrics endpoint
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NotFound handles 404 errors with RFC 7807 format
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, h.logger, http.StatusNotFound, "Not Found", "The requested resource was not found", nil)
}

// MethodNotAllowed handles 405 errors with RFC 7807 format
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeProblem(w, r, h.logger, http.StatusMethodNotAllowed, "Method Not Allowed", "The request method is not allowed for this resource", nil)
}

// writeProblem writes RFC 7807 error response
func writeProblem(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, title, detail string, extra map[string]interface{}) {
	errResp := ErrorResponse{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Extra:    extra,
	}
	if id := middleware.GetRequestID(r.Context()); id != "" {
		if errResp.Extra == nil {
			errResp.Extra = map[string]interface{}{}
		}
		errResp.Extra["request_id"] = id
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("Failed to encode error response", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
