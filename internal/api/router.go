package api

import (
	"net/http"

	"conversation-chaos/internal/logging"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all REST API routes
func (h *RESTHandler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	if h.correlationIDs {
		router.Use(logging.CorrelationIDMiddleware(h.logger))
	}
	if h.tracing != nil {
		router.Use(h.TracingMiddleware)
	}
	router.Use(logging.LoggingMiddleware(h.logger))
	if h.metrics != nil {
		router.Use(h.MetricsMiddleware)
	}
	router.Use(h.CORSMiddleware)

	// API version 1
	v1 := router.PathPrefix("/api/v1").Subrouter()
	if h.rateLimiter != nil {
		v1.Use(h.rateLimiter.Middleware)
	}

	// Chaos engine
	v1.HandleFunc("/inject", h.Inject).Methods(http.MethodPost)
	v1.HandleFunc("/validate", h.Validate).Methods(http.MethodPost)

	// Run ledger
	v1.HandleFunc("/runs", h.ListRuns).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{fingerprint}", h.GetRun).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{fingerprint}", h.DeleteRun).Methods(http.MethodDelete)
	v1.HandleFunc("/runs/{fingerprint}/replay", h.ReplayRun).Methods(http.MethodPost)

	v1.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Handle OPTIONS for all routes (CORS preflight)
	v1.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Root endpoints
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if h.metrics != nil {
		router.Handle(h.metricsPath, h.metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/", h.RootHandler).Methods(http.MethodGet)

	return router
}

// RootHandler handles requests to the root path
func (h *RESTHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service":     "Conversation Chaos Engine",
		"version":     "1.0.0",
		"api_version": "v1",
		"modes":       modeNames(),
		"endpoints": map[string]interface{}{
			"health":  "/health or /api/v1/health",
			"metrics": h.metricsPath,
			"chaos": map[string]string{
				"inject":   "POST /api/v1/inject",
				"validate": "POST /api/v1/validate",
			},
			"runs": map[string]string{
				"list":   "GET /api/v1/runs",
				"get":    "GET /api/v1/runs/{fingerprint}",
				"delete": "DELETE /api/v1/runs/{fingerprint}",
				"replay": "POST /api/v1/runs/{fingerprint}/replay",
			},
		},
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}
