package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/app"
	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/recent"
	"github.com/kjstillabower/weather-search/internal/traffic"
	"github.com/kjstillabower/weather-search/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	Window     time.Duration
	FailurePct int
	// StoragePing, when set, checks the persistence backend.
	StoragePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	session      *app.Session
	tracker      *traffic.Tracker
	bounds       validation.Bounds
	healthConfig *HealthConfig
	logger       *zap.Logger

	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. tracker may be shared with the rate-limit middleware.
func NewHandler(session *app.Session, tracker *traffic.Tracker, bounds validation.Bounds, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		session:      session,
		tracker:      tracker,
		bounds:       bounds,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// SetShuttingDown flips /health to shutting-down.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type queryBody struct {
	Query string `json:"query"`
}

type stateResponse struct {
	State app.State `json:"state"`
	View  app.View  `json:"view"`
}

type recentResponse struct {
	Cities recent.List `json:"cities"`
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, h.session.Snapshot())
}

// PutQuery handles PUT /query. The field holds whatever the user typed, so only length is checked.
func (h *Handler) PutQuery(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	if h.bounds.MaxLen > 0 && utf8.RuneCountInString(body.Query) > h.bounds.MaxLen {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", validation.ErrQueryTooLong.Error())
		return
	}
	h.writeState(w, h.session.SetQuery(body.Query))
}

// PostSearch handles POST /search. An empty body searches the current input field.
func (h *Handler) PostSearch(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	query := body.Query
	if strings.TrimSpace(query) == "" {
		query = h.session.Snapshot().Query
	}
	if strings.TrimSpace(query) != "" {
		var err error
		if query, err = validation.ValidateQuery(query, h.bounds); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
			return
		}
	}
	reading, err := h.session.Search(r.Context(), query)
	h.writeLookup(w, r, reading, err)
}

// PostRefresh handles POST /refresh.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	reading, err := h.session.Refresh(r.Context())
	h.writeLookup(w, r, reading, err)
}

// GetRecent handles GET /recent.
func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, recentResponse{Cities: h.session.Snapshot().Recent})
}

// DeleteRecent handles DELETE /recent/{city}. Deleting an absent city still returns 200.
func (h *Handler) DeleteRecent(w http.ResponseWriter, r *http.Request) {
	city := mux.Vars(r)["city"]
	list, err := h.session.DeleteRecent(r.Context(), city)
	if err != nil {
		observability.LoggerFrom(r.Context(), h.logger).Error("delete recent city", zap.String("city", city), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "STORAGE_ERROR", "Unable to save recent cities")
		return
	}
	writeJSON(w, http.StatusOK, recentResponse{Cities: list})
}

// PostSelectRecent handles POST /recent/{city}/select.
func (h *Handler) PostSelectRecent(w http.ResponseWriter, r *http.Request) {
	city, err := validation.ValidateQuery(mux.Vars(r)["city"], h.bounds)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	reading, err := h.session.SelectRecent(r.Context(), city)
	h.writeLookup(w, r, reading, err)
}

// PostThemeToggle handles POST /theme/toggle.
func (h *Handler) PostThemeToggle(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, h.session.ToggleTheme())
}

// PostDropdownToggle handles POST /dropdown/toggle.
func (h *Handler) PostDropdownToggle(w http.ResponseWriter, r *http.Request) {
	h.writeState(w, h.session.ToggleDropdown())
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

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "weather-search",
		"version":   "dev",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, storage reachability,
// lookup failure rate. The first condition that holds decides the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{"weatherApi": "healthy"}
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	result := healthResult{"healthy", http.StatusOK, "", checks}
	if h.healthConfig.StoragePing != nil {
		checks["storage"] = "healthy"
		if err := h.healthConfig.StoragePing(ctx); err != nil {
			checks["storage"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "storage_unreachable", checks}
		}
	}
	if h.tracker.Degraded(h.healthConfig.Window, h.healthConfig.FailurePct) {
		checks["weatherApi"] = "unhealthy"
		if result.status == "healthy" {
			result = healthResult{"degraded", http.StatusServiceUnavailable, "failure_rate_breach", checks}
		}
	}
	return result
}

func (h *Handler) writeState(w http.ResponseWriter, s app.State) {
	writeJSON(w, http.StatusOK, stateResponse{State: s, View: app.Project(s)})
}

// writeLookup turns a session lookup result into a response and feeds the health tracker.
func (h *Handler) writeLookup(w http.ResponseWriter, r *http.Request, reading models.WeatherReading, err error) {
	switch {
	case err == nil:
		h.tracker.RecordSuccess()
		writeJSON(w, http.StatusOK, reading)
	case errors.Is(err, app.ErrNoQuery):
		w.WriteHeader(http.StatusNoContent)
	default:
		var lerr *client.LookupError
		if errors.As(err, &lerr) && lerr.NotFound() {
			writeError(w, r, http.StatusNotFound, "CITY_NOT_FOUND", "City not found")
			return
		}
		h.tracker.RecordFailure()
		writeLookupError(w, r, err)
	}
}

// decodeQuery reads an optional {query} body. An empty body yields a zero value.
func decodeQuery(w http.ResponseWriter, r *http.Request) (queryBody, bool) {
	var body queryBody
	if r.Body == nil {
		return body, true
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return body, false
	}
	return body, true
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope, with the correlation ID as requestId.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeLookupError writes a 502 for upstream failures and logs the cause at DEBUG.
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadGateway, "LOOKUP_FAILED", "Unable to fetch weather data")
	observability.LoggerFrom(r.Context(), zap.NewNop()).Debug("lookup error",
		zap.String("category", string(client.CategorizeError(err))), zap.Error(err))
}
