package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-search/internal/observability"
)

// RouterOptions configures the lookup-route protections.
type RouterOptions struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter
}

// NewRouter wires every route. Lookup routes, the ones that reach the weather
// provider, also get the rate limiter and the request timeout.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	router.HandleFunc("/query", h.PutQuery).Methods(http.MethodPut)
	router.HandleFunc("/recent", h.GetRecent).Methods(http.MethodGet)
	router.HandleFunc("/recent/{city}", h.DeleteRecent).Methods(http.MethodDelete)
	router.HandleFunc("/theme/toggle", h.PostThemeToggle).Methods(http.MethodPost)
	router.HandleFunc("/dropdown/toggle", h.PostDropdownToggle).Methods(http.MethodPost)

	lookups := router.NewRoute().Subrouter()
	lookups.Use(RateLimitMiddleware(opts.Limiter, h.tracker))
	if opts.RequestTimeout > 0 {
		lookups.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	lookups.HandleFunc("/search", h.PostSearch).Methods(http.MethodPost)
	lookups.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	lookups.HandleFunc("/recent/{city}/select", h.PostSelectRecent).Methods(http.MethodPost)

	return router
}
