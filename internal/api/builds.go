package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/build"
	"github.com/cross19xx/eas-build/pkg/dsl"
	"github.com/cross19xx/eas-build/pkg/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// maxRequestBody 构建定义上限 + JSON 包装余量
const maxRequestBody = dsl.MaxDefinitionSize + 64*1024

// BuildHandlers handles build endpoints
type BuildHandlers struct {
	logger  *zap.Logger
	service *service.Service
}

// NewBuildHandlers creates new BuildHandlers instance
func NewBuildHandlers(logger *zap.Logger, svc *service.Service) *BuildHandlers {
	return &BuildHandlers{logger: logger, service: svc}
}

// SubmitBuildRequest represents a build submission
type SubmitBuildRequest struct {
	YAML string            `json:"yaml"`
	Env  map[string]string `json:"env,omitempty"`
}

// SubmitBuild handles POST /v1/builds. The build runs synchronously; the
// response carries its final state. A build that fails while running is
// still answered with 200 and status "failed".
func (h *BuildHandlers) SubmitBuild(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeProblem(w, r, logger, http.StatusRequestEntityTooLarge, "Request Too Large", err.Error(), nil)
		return
	}

	var req SubmitBuildRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeProblem(w, r, logger, http.StatusBadRequest, "Bad Request", "Invalid JSON format", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if req.YAML == "" {
		writeProblem(w, r, logger, http.StatusBadRequest, "Bad Request", "Field yaml is required", map[string]interface{}{
			"field": "yaml",
		})
		return
	}

	result, err := h.service.Run(r.Context(), service.RunRequest{
		Content: []byte(req.YAML),
		Env:     build.Env(req.Env),
		ID:      middleware.GetRequestID(r.Context()),
	})
	if result == nil {
		h.writeRunError(w, r, logger, err)
		return
	}
	if err != nil {
		logger.Warn("Build failed", zap.String("build_id", result.ID), zap.Error(err))
	}

	writeJSON(w, logger, http.StatusOK, result)
}

func (h *BuildHandlers) writeRunError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var valErr *dsl.ValidationError
	if errors.As(err, &valErr) {
		writeValidationError(w, logger, valErr)
		return
	}

	var cfgErr *build.ConfigurationError
	var unknownErr *build.UnknownFunctionError
	switch {
	case errors.As(err, &unknownErr):
		writeProblem(w, r, logger, http.StatusUnprocessableEntity, "Unknown Function", err.Error(), map[string]interface{}{
			"function":  unknownErr.FunctionID,
			"available": unknownErr.Available,
		})
	case errors.As(err, &cfgErr):
		writeProblem(w, r, logger, http.StatusUnprocessableEntity, "Configuration Error", err.Error(), map[string]interface{}{
			"field": cfgErr.Field,
		})
	default:
		logger.Error("Failed to start build", zap.Error(err))
		writeProblem(w, r, logger, http.StatusInternalServerError, "Internal Server Error", "Failed to start build", nil)
	}
}

// ValidateBuild handles POST /v1/builds/validate. The body is the raw YAML
// definition.
func (h *BuildHandlers) ValidateBuild(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFromContext(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeProblem(w, r, logger, http.StatusRequestEntityTooLarge, "Request Too Large", err.Error(), nil)
		return
	}
	if len(body) == 0 {
		writeProblem(w, r, logger, http.StatusBadRequest, "Bad Request", "Request body is empty", nil)
		return
	}

	def, err := h.service.Validate(body)
	if err != nil {
		var valErr *dsl.ValidationError
		if errors.As(err, &valErr) {
			writeValidationError(w, logger, valErr)
			return
		}
		writeProblem(w, r, logger, http.StatusBadRequest, "Bad Request", err.Error(), nil)
		return
	}

	writeJSON(w, logger, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"name":      def.Name,
		"steps":     len(def.Steps),
		"functions": def.FunctionNames(),
	})
}

// ListFunctions handles GET /v1/functions
func (h *BuildHandlers) ListFunctions(w http.ResponseWriter, r *http.Request) {
	functions := h.service.Functions()
	writeJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"functions": functions,
		"total":     len(functions),
	})
}

// GetFunction handles GET /v1/functions/{name}
func (h *BuildHandlers) GetFunction(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, fn := range h.service.Functions() {
		if fn.Name == name {
			writeJSON(w, h.logger, http.StatusOK, fn)
			return
		}
	}
	writeProblem(w, r, h.logger, http.StatusNotFound, "Not Found", "Function "+name+" is not registered", nil)
}

// Schema handles GET /v1/schema
func (h *BuildHandlers) Schema(w http.ResponseWriter, r *http.Request) {
	schema, err := h.service.Schema()
	if err != nil {
		writeProblem(w, r, h.logger, http.StatusInternalServerError, "Internal Server Error", "Failed to load schema", nil)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(schema)
}

func writeValidationError(w http.ResponseWriter, logger *zap.Logger, valErr *dsl.ValidationError) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(valErr.ToHTTPError()); err != nil {
		logger.Error("Failed to encode validation error", zap.Error(err))
	}
}
