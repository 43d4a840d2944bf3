package api

import (
	"net/http"

	"github.com/cross19xx/eas-build/internal/service"
	"github.com/cross19xx/eas-build/pkg/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter creates and configures HTTP router with all endpoints
func NewRouter(logger *zap.Logger, svc *service.Service, version, commit, buildTime string) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Metrics)

	h := NewHandlers(logger, version, commit, buildTime)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/version", h.Version).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)

	bh := NewBuildHandlers(logger, svc)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/builds", bh.SubmitBuild).Methods(http.MethodPost)
	v1.HandleFunc("/builds/validate", bh.ValidateBuild).Methods(http.MethodPost)
	v1.HandleFunc("/functions", bh.ListFunctions).Methods(http.MethodGet)
	v1.HandleFunc("/functions/{name}", bh.GetFunction).Methods(http.MethodGet)
	v1.HandleFunc("/schema", bh.Schema).Methods(http.MethodGet)

	// Custom error handlers
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)

	return router
}
