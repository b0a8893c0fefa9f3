package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-sync-service/internal/observability"
)

// RouterConfig configures NewRouter. A nil Limiter disables rate limiting.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter wires the handler's routes. Commands (refresh, select, search)
// share the rate limiter; reads and the stream do not.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	router.HandleFunc("/weather", h.GetWeather).Methods("GET")
	router.HandleFunc("/weather/stream", h.StreamWeather).Methods("GET")
	router.HandleFunc("/location", h.GetLocation).Methods("GET")
	router.HandleFunc("/suggestions", h.GetSuggestions).Methods("GET")

	limit := RateLimitMiddleware(cfg.Limiter)
	timeout := TimeoutMiddleware(cfg.RequestTimeout)
	command := func(hf http.HandlerFunc) http.Handler {
		return limit(timeout(hf))
	}
	router.Handle("/weather/refresh", command(h.PostRefresh)).Methods("POST")
	router.Handle("/location", command(h.PutLocation)).Methods("PUT")
	router.Handle("/search", command(h.PostSearch)).Methods("POST")

	return router
}
