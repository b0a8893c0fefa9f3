package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-sync-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-sync-service/internal/lifecycle"
	"github.com/kjstillabower/weather-sync-service/internal/models"
	"github.com/kjstillabower/weather-sync-service/internal/observability"
	"github.com/kjstillabower/weather-sync-service/internal/service"
	"github.com/kjstillabower/weather-sync-service/internal/traffic"
	"github.com/kjstillabower/weather-sync-service/internal/validation"
)

const (
	streamBuffer    = 8
	streamKeepAlive = 15 * time.Second
	maxBodyBytes    = 1 << 16
)

// HealthConfig holds thresholds and probes for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// BreakerState, when set, reports the weather API circuit breaker state.
	BreakerState func() circuitbreaker.State
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	// Phase overrides lifecycle.CurrentPhase. Tests only.
	Phase func() lifecycle.Phase
}

// QueryLimits bounds the search query length accepted by POST /search.
type QueryLimits struct {
	MinLength int
	MaxLength int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	controller   *service.WeatherSyncController
	healthConfig *HealthConfig
	logger       *zap.Logger
	queryLimits  QueryLimits

	healthStatusMu   sync.Mutex
	healthStatusPrev string

	streamsOnce sync.Once
	streamsDone chan struct{}
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(
	controller *service.WeatherSyncController,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	queryLimits QueryLimits,
) *Handler {
	return &Handler{
		controller:   controller,
		healthConfig: healthConfig,
		logger:       logger,
		queryLimits:  queryLimits,
		streamsDone:  make(chan struct{}),
	}
}

// CloseStreams ends every open /weather/stream response. Register with
// http.Server.RegisterOnShutdown so Shutdown does not wait on them.
func (h *Handler) CloseStreams() {
	h.streamsOnce.Do(func() { close(h.streamsDone) })
}

// GetWeather handles GET /weather.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.State())
}

// StreamWeather handles GET /weather/stream. The current state is sent first,
// then every change, as server-sent events. Slow clients skip intermediate states.
func (h *Handler) StreamWeather(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	states, unsubscribe := h.controller.SubscribeState(streamBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	logger := observability.LoggerFromContext(r.Context(), h.logger)
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.streamsDone:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case state, ok := <-states:
			if !ok {
				return
			}
			raw, err := json.Marshal(state)
			if err != nil {
				logger.Error("encode state", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", raw); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// PostRefresh handles POST /weather/refresh. Responds with the state at the end
// of the refresh; with no selected location the state is returned unchanged.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Refresh(r.Context()))
}

// GetLocation handles GET /location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.controller.Selected()
	if !ok {
		writeError(w, r, http.StatusNotFound, "NO_LOCATION", "no location selected yet")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// PutLocation handles PUT /location with body {name, latitude, longitude}.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var req validation.LocationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	loc, err := validation.ValidateLocationRequest(req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.controller.SelectLocation(r.Context(), loc))
}

type searchRequest struct {
	Query string `json:"query"`
}

type suggestionsResponse struct {
	Query       string                `json:"query,omitempty"`
	Suggestions []models.LocationData `json:"suggestions"`
}

// PostSearch handles POST /search with body {query}.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	query, err := validation.ValidateQuery(req.Query, h.queryLimits.MinLength, h.queryLimits.MaxLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	list := h.controller.SetSearchQuery(r.Context(), query)
	writeJSON(w, http.StatusOK, suggestionsResponse{Query: query, Suggestions: list})
}

// GetSuggestions handles GET /suggestions.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: h.controller.Suggestions()})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-sync-service",
		"version":   "dev",
		"sync":      string(h.controller.State().Status),
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > circuit open > cache unreachable > error rate > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	cfg := h.healthConfig
	if cfg == nil {
		cfg = &HealthConfig{}
	}
	phase := lifecycle.CurrentPhase()
	if cfg.Phase != nil {
		phase = cfg.Phase()
	}

	checks := map[string]string{"weatherApi": "healthy"}
	breakerOpen := cfg.BreakerState != nil && cfg.BreakerState() == circuitbreaker.StateOpen
	if breakerOpen {
		checks["weatherApi"] = "unhealthy"
	}
	cacheDown := false
	if cfg.CachePing != nil {
		checks["cache"] = "healthy"
		if err := cfg.CachePing(); err != nil {
			cacheDown = true
			checks["cache"] = "unhealthy"
			observability.LoggerFromContext(ctx, h.logger).Debug("cache ping failed", zap.Error(err))
		}
	}

	switch {
	case phase == lifecycle.PhaseDraining:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	case phase == lifecycle.PhaseStarting:
		return healthResult{"starting", http.StatusServiceUnavailable, "initializing", checks}
	case breakerOpen:
		return healthResult{"degraded", http.StatusServiceUnavailable, "circuit_open", checks}
	case cacheDown:
		return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable", checks}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(cfg.DegradedWindow)
		if total > 0 && float64(errs)*100/float64(total) >= float64(cfg.DegradedErrorPct) {
			checks["weatherApi"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
		}
	}
	return healthResult{"healthy", http.StatusOK, "", checks}
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields and
// bodies larger than maxBodyBytes.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return fmt.Errorf("malformed JSON body: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}
