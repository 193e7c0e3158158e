package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/config"
	"conversation-chaos/internal/conversation"
	"conversation-chaos/internal/ledger"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
	"conversation-chaos/internal/security"
	"conversation-chaos/internal/stats"
	"conversation-chaos/internal/tracing"
)

// RESTHandler serves the chaos engine over HTTP
type RESTHandler struct {
	engine         config.EngineConfig
	maxBody        int64
	metricsPath    string
	correlationIDs bool
	ledger         ledger.Store
	logger         *logging.Logger
	metrics        *monitoring.ChaosMetrics
	health         *monitoring.HealthManager
	tracing        *tracing.TracingService
	rateLimiter    *security.RateLimiter
	chaosOpts      []chaos.Option
	injector       *chaos.Injector
}

// maxValidationSamples bounds the trials a single request may ask for.
const maxValidationSamples = 100000

// Dependencies groups what the handler needs besides configuration. Every
// field but Logger may be nil.
type Dependencies struct {
	Ledger      ledger.Store
	Logger      *logging.Logger
	Metrics     *monitoring.ChaosMetrics
	Health      *monitoring.HealthManager
	Tracing     *tracing.TracingService
	RateLimiter *security.RateLimiter
}

// NewRESTHandler creates a new REST API handler
func NewRESTHandler(cfg *config.Config, deps Dependencies) *RESTHandler {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	opts := []chaos.Option{
		chaos.WithLogger(logger),
		chaos.WithMetrics(deps.Metrics),
		chaos.WithDefaultSeed(cfg.Engine.DefaultSeed),
	}
	if deps.Tracing != nil {
		opts = append(opts, chaos.WithTracer(deps.Tracing.GetTracer()))
	}

	metricsPath := cfg.Metrics.Path
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	return &RESTHandler{
		engine:         cfg.Engine,
		maxBody:        cfg.Server.MaxBodySize,
		metricsPath:    metricsPath,
		correlationIDs: cfg.Logging.EnableCorrelationIDs,
		ledger:         deps.Ledger,
		logger:         logger,
		metrics:        deps.Metrics,
		health:         deps.Health,
		tracing:        deps.Tracing,
		rateLimiter:    deps.RateLimiter,
		chaosOpts:      opts,
		injector:       chaos.NewInjector(opts...),
	}
}

// Request/Response types for JSON handling

// InjectRequest represents an injection request
type InjectRequest struct {
	Conversation   conversation.Conversation `json:"conversation"`
	Configurations []chaos.Configuration     `json:"configurations"`
	// Record defaults to true; false skips the ledger.
	Record *bool `json:"record,omitempty"`
}

// InjectResponse carries the mutated conversation and its summary
type InjectResponse struct {
	RunID        string                    `json:"runId"`
	Conversation conversation.Conversation `json:"conversation"`
	Result       chaos.Result              `json:"result"`
	Timeline     []chaos.TimelineEntry     `json:"timeline"`
	Recorded     bool                      `json:"recorded"`
}

// ValidateRequest represents a distribution check request
type ValidateRequest struct {
	Configuration chaos.Configuration `json:"configuration"`
	Samples       int                 `json:"samples,omitempty"`
	BaseSeed      *int64              `json:"baseSeed,omitempty"`
}

// ListRunsResponse represents a ledger listing
type ListRunsResponse struct {
	Runs  []*ledger.Record `json:"runs"`
	Count int              `json:"count"`
}

// ReplayRequest represents a replay request
type ReplayRequest struct {
	Conversation conversation.Conversation `json:"conversation"`
}

// ReplayResponse pairs the verification with the replayed result
type ReplayResponse struct {
	Verification *ledger.Verification `json:"verification"`
	Result       chaos.Result         `json:"result"`
}

// ErrorResponse represents a generic error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// POST /api/v1/inject
func (h *RESTHandler) Inject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Conversation.Messages) > h.engine.MaxMessages {
		h.writeErrorResponse(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Conversation has %d messages, the limit is %d", len(req.Conversation.Messages), h.engine.MaxMessages))
		return
	}

	h.logger.DebugContext(ctx, "Processing inject request",
		"conversation_id", req.Conversation.ID,
		"messages", len(req.Conversation.Messages),
		"configurations", len(req.Configurations),
	)

	outcome, err := h.injector.Inject(ctx, req.Conversation, req.Configurations)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := InjectResponse{
		RunID:        outcome.RunID,
		Conversation: outcome.Conversation,
		Result:       outcome.Result,
		Timeline:     outcome.Timeline,
	}

	if h.ledger != nil && (req.Record == nil || *req.Record) {
		rec, err := ledger.NewRecord(&req.Conversation, outcome, req.Configurations)
		if err == nil {
			err = h.ledger.Put(ctx, rec)
		}
		switch {
		case errors.Is(err, ledger.ErrFingerprintConflict):
			h.logger.WarnContext(ctx, "Run not recorded, fingerprint belongs to another input",
				"fingerprint", outcome.Result.Fingerprint)
		case err != nil:
			// The run itself succeeded; a ledger outage only loses the record.
			h.logger.WithError(err).ErrorContext(ctx, "Failed to record run", "fingerprint", outcome.Result.Fingerprint)
		default:
			resp.Recorded = true
		}
	}

	h.writeJSONResponse(w, http.StatusOK, resp)
}

// POST /api/v1/validate
func (h *RESTHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ValidateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Configuration.Parameters == nil {
		h.writeErrorResponse(w, http.StatusBadRequest, "Configuration is required")
		return
	}

	samples := req.Samples
	if samples == 0 {
		samples = h.engine.ValidationSamples
	}
	if samples < 0 || samples > maxValidationSamples {
		h.writeErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Samples must be between 1 and %d", maxValidationSamples))
		return
	}
	baseSeed := h.engine.ValidationSeed
	if req.BaseSeed != nil {
		baseSeed = *req.BaseSeed
	}

	var report *stats.Report
	validate := func(ctx context.Context) error {
		var err error
		report, err = stats.ValidateDistribution(ctx, req.Configuration.Parameters, samples,
			stats.WithBaseSeed(baseSeed),
			stats.WithLogger(h.logger),
			stats.WithMetrics(h.metrics),
		)
		return err
	}

	var err error
	if h.tracing != nil {
		err = h.tracing.TraceOperation(ctx, "chaos.validate", func(ctx context.Context, span oteltrace.Span) error {
			span.SetAttributes(
				attribute.String("chaos.mode", string(req.Configuration.Parameters.Mode())),
				attribute.Int("chaos.samples", samples),
			)
			return validate(ctx)
		})
	} else {
		err = validate(ctx)
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, report)
}

// GET /api/v1/runs
func (h *RESTHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireLedger(w) {
		return
	}

	recs, err := h.ledger.List(r.Context())
	if err != nil {
		h.logger.WithError(err).ErrorContext(r.Context(), "Failed to list runs")
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ListRunsResponse{Runs: recs, Count: len(recs)})
}

// GET /api/v1/runs/{fingerprint}
func (h *RESTHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireLedger(w) {
		return
	}
	fingerprint := mux.Vars(r)["fingerprint"]

	rec, err := h.ledger.Get(r.Context(), fingerprint)
	if err != nil {
		h.writeLedgerError(w, r, fingerprint, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, rec)
}

// DELETE /api/v1/runs/{fingerprint}
func (h *RESTHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireLedger(w) {
		return
	}
	fingerprint := mux.Vars(r)["fingerprint"]

	if err := h.ledger.Delete(r.Context(), fingerprint); err != nil {
		h.writeLedgerError(w, r, fingerprint, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/runs/{fingerprint}/replay
func (h *RESTHandler) ReplayRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireLedger(w) {
		return
	}
	fingerprint := mux.Vars(r)["fingerprint"]

	var req ReplayRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Conversation.Messages) > h.engine.MaxMessages {
		h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "Conversation is too large")
		return
	}

	v, outcome, err := ledger.Replay(r.Context(), h.ledger, fingerprint, req.Conversation, h.chaosOpts...)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		h.writeLedgerError(w, r, fingerprint, err)
		return
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Replayed run",
		"fingerprint", fingerprint,
		"reproduced", v.Reproduced,
		"same_input", v.SameInput,
	)
	h.writeJSONResponse(w, http.StatusOK, ReplayResponse{Verification: v, Result: outcome.Result})
}

// GET /health
func (h *RESTHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": string(monitoring.HealthStatusHealthy)})
		return
	}

	resp := h.health.CheckHealth(r.Context())
	status := http.StatusOK
	if resp.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSONResponse(w, status, resp)
}

func modeNames() []string {
	names := make([]string, len(chaos.Modes))
	for i, m := range chaos.Modes {
		names[i] = string(m)
	}
	return names
}

// decode reads a JSON body no larger than the configured limit. On failure it
// has already written the response.
func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		h.logger.WarnContext(r.Context(), "Request with invalid JSON", "path", r.URL.Path, "error", err.Error())
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON request: "+err.Error())
		return false
	}
	return true
}

func (h *RESTHandler) requireLedger(w http.ResponseWriter) bool {
	if h.ledger == nil {
		h.writeErrorResponse(w, http.StatusNotImplemented, "No run ledger is configured")
		return false
	}
	return true
}

// writeEngineError maps chaos and stats errors to status codes
func (h *RESTHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case chaos.IsConfigurationError(err), errors.Is(err, conversation.ErrInvalidConversation):
		h.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, stats.ErrNotStochastic):
		h.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
	case r.Context().Err() != nil:
		h.writeErrorResponse(w, http.StatusRequestTimeout, err.Error())
	default:
		h.logger.WithError(err).ErrorContext(r.Context(), "Chaos engine failed", "path", r.URL.Path)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *RESTHandler) writeLedgerError(w http.ResponseWriter, r *http.Request, fingerprint string, err error) {
	if errors.Is(err, ledger.ErrRecordNotFound) {
		h.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("No run with fingerprint %s", fingerprint))
		return
	}
	h.logger.WithError(err).ErrorContext(r.Context(), "Ledger request failed", "fingerprint", fingerprint)
	h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
}

func (h *RESTHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

func (h *RESTHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	h.writeJSONResponse(w, statusCode, ErrorResponse{
		Error:   message,
		Code:    statusCode,
		Message: http.StatusText(statusCode),
	})
}

// CORS middleware
func (h *RESTHandler) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Correlation-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// MetricsMiddleware records request counts and latency by route template
func (h *RESTHandler) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		h.metrics.ObserveRequest(r.Method, routeTemplate(r), rw.statusCode, time.Since(start))
	})
}

// TracingMiddleware opens a span per request, named by route template
func (h *RESTHandler) TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracing.InstrumentHTTPRequest(r.Context(), r.Method, routeTemplate(r))
		defer span.End()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}

func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
