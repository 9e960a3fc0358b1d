package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-search/internal/app"
	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/condition"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/recent"
	"github.com/kjstillabower/weather-search/internal/storage"
	"github.com/kjstillabower/weather-search/internal/traffic"
	"github.com/kjstillabower/weather-search/internal/validation"
)

// mockWeatherClient answers from a fixed table. Unknown cities are not found.
type mockWeatherClient struct {
	mu       sync.Mutex
	readings map[string]models.WeatherReading
	err      error
	calls    []string
}

func (m *mockWeatherClient) Lookup(ctx context.Context, city string) (models.WeatherReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, city)
	if m.err != nil {
		return models.WeatherReading{}, m.err
	}
	if r, ok := m.readings[strings.ToLower(city)]; ok {
		return r, nil
	}
	return models.WeatherReading{}, &client.LookupError{City: city, Cause: client.ErrCityNotFound}
}

func (m *mockWeatherClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newMockClient() *mockWeatherClient {
	return &mockWeatherClient{readings: map[string]models.WeatherReading{
		"paris": {City: "Paris", TemperatureC: 12.4, HumidityPercent: 70, WindSpeed: 4.1, Condition: condition.Clouds},
		"tokyo": {City: "Tokyo", TemperatureC: 21, HumidityPercent: 55, WindSpeed: 2, Condition: condition.Clear},
	}}
}

type testServer struct {
	handler *Handler
	router  http.Handler
	client  *mockWeatherClient
	session *app.Session
	backend *storage.MemoryStore
}

func newTestServer(t *testing.T, mc *mockWeatherClient, health *HealthConfig) *testServer {
	t.Helper()
	backend := storage.NewMemoryStore()
	store := recent.NewStore(backend, "memory", recent.DefaultMax, nil)
	if _, _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	session := app.NewSession(mc, store, app.Config{}, nil)
	h := NewHandler(session, traffic.NewTracker(), validation.DefaultBounds, health, zap.NewNop())
	return &testServer{
		handler: h,
		router:  NewRouter(h, zap.NewNop(), RouterOptions{}),
		client:  mc,
		session: session,
		backend: backend,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return env
}

func decodeRecent(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var body struct {
		Cities []string `json:"cities"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode recent body: %v", err)
	}
	return body.Cities
}

func TestHandler_Search_Success(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	w := s.do(t, http.MethodPost, "/search", `{"query":"paris"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body)
	}
	var got models.WeatherReading
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.City != "Paris" || got.Condition != condition.Clouds {
		t.Errorf("reading = %+v", got)
	}
	if st := s.session.Snapshot(); len(st.Recent) != 1 || st.Recent[0] != "paris" {
		t.Errorf("recent = %v, want [paris]", st.Recent)
	}
}

func TestHandler_Search_NotFound(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	w := s.do(t, http.MethodPost, "/search", `{"query":"Atlantis"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	env := decodeError(t, w)
	if env.Error.Code != "CITY_NOT_FOUND" || env.Error.Message != "City not found" {
		t.Errorf("error = %+v", env.Error)
	}
	if env.Error.RequestID == "" {
		t.Error("requestId missing from error envelope")
	}
	if len(s.session.Snapshot().Recent) != 0 {
		t.Error("failed search changed recent list")
	}
}

func TestHandler_Search_UpstreamFailure(t *testing.T) {
	mc := newMockClient()
	mc.err = &client.LookupError{City: "Paris", Cause: client.ErrUpstreamFailure}
	s := newTestServer(t, mc, nil)

	w := s.do(t, http.MethodPost, "/search", `{"query":"Paris"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if env := decodeError(t, w); env.Error.Code != "LOOKUP_FAILED" {
		t.Errorf("code = %q, want LOOKUP_FAILED", env.Error.Code)
	}
}

func TestHandler_Search_InvalidQuery(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad chars", `{"query":"par/is"}`},
		{"too long", `{"query":"` + strings.Repeat("a", 101) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, newMockClient(), nil)
			w := s.do(t, http.MethodPost, "/search", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if env := decodeError(t, w); env.Error.Code != "INVALID_QUERY" {
				t.Errorf("code = %q, want INVALID_QUERY", env.Error.Code)
			}
			if s.client.callCount() != 0 {
				t.Error("invalid query reached the weather client")
			}
		})
	}
}

func TestHandler_Search_MalformedBody(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)
	w := s.do(t, http.MethodPost, "/search", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandler_Search_EmptyIsNoOp(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	for _, body := range []string{"", `{}`, `{"query":"   "}`} {
		w := s.do(t, http.MethodPost, "/search", body)
		if w.Code != http.StatusNoContent {
			t.Errorf("body %q: status = %d, want 204", body, w.Code)
		}
	}
	if s.client.callCount() != 0 {
		t.Errorf("weather client called %d times, want 0", s.client.callCount())
	}
}

func TestHandler_Search_UsesInputField(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	if w := s.do(t, http.MethodPut, "/query", `{"query":"Tokyo"}`); w.Code != http.StatusOK {
		t.Fatalf("PUT /query status = %d", w.Code)
	}
	w := s.do(t, http.MethodPost, "/search", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandler_RecentFlow(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)
	for _, city := range []string{"Paris", "Tokyo", "Paris"} {
		if w := s.do(t, http.MethodPost, "/search", `{"query":"`+city+`"}`); w.Code != http.StatusOK {
			t.Fatalf("search %s: status = %d", city, w.Code)
		}
	}

	got := decodeRecent(t, s.do(t, http.MethodGet, "/recent", ""))
	if strings.Join(got, ",") != "Paris,Tokyo" {
		t.Errorf("recent = %v, want [Paris Tokyo]", got)
	}

	w := s.do(t, http.MethodDelete, "/recent/Tokyo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if got := decodeRecent(t, w); strings.Join(got, ",") != "Paris" {
		t.Errorf("after delete = %v, want [Paris]", got)
	}

	w = s.do(t, http.MethodDelete, "/recent/Nowhere", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE absent status = %d, want 200", w.Code)
	}
}

func TestHandler_Refresh(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	if w := s.do(t, http.MethodPost, "/refresh", ""); w.Code != http.StatusNoContent {
		t.Errorf("refresh without reading: status = %d, want 204", w.Code)
	}

	s.do(t, http.MethodPost, "/search", `{"query":"tokyo"}`)
	before := s.session.Snapshot().Recent

	w := s.do(t, http.MethodPost, "/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", w.Code)
	}
	if after := s.session.Snapshot().Recent; strings.Join(after, ",") != strings.Join(before, ",") {
		t.Errorf("refresh changed recent: %v -> %v", before, after)
	}
	if last := s.client.calls[len(s.client.calls)-1]; last != "Tokyo" {
		t.Errorf("refresh looked up %q, want canonical Tokyo", last)
	}
}

func TestHandler_SelectRecent(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)
	s.do(t, http.MethodPost, "/search", `{"query":"Paris"}`)
	s.do(t, http.MethodPost, "/search", `{"query":"Tokyo"}`)
	s.do(t, http.MethodPost, "/dropdown/toggle", "")

	w := s.do(t, http.MethodPost, "/recent/Paris/select", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	st := s.session.Snapshot()
	if st.DropdownVisible {
		t.Error("dropdown still visible after select")
	}
	if strings.Join(st.Recent, ",") != "Paris,Tokyo" {
		t.Errorf("recent = %v, want [Paris Tokyo]", st.Recent)
	}
}

func TestHandler_StateAndToggles(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)

	var resp struct {
		State app.State `json:"state"`
		View  app.View  `json:"view"`
	}
	w := s.do(t, http.MethodGet, "/state", "")
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.State.DarkMode || resp.View.Theme != "dark" {
		t.Errorf("initial theme = %v / %q, want dark", resp.State.DarkMode, resp.View.Theme)
	}

	w = s.do(t, http.MethodPost, "/theme/toggle", "")
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.View.Theme != "light" {
		t.Errorf("theme after toggle = %q, want light", resp.View.Theme)
	}

	w = s.do(t, http.MethodPost, "/dropdown/toggle", "")
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.State.DropdownVisible {
		t.Error("dropdown not visible after toggle")
	}
}

func TestHandler_PutQuery_TooLong(t *testing.T) {
	s := newTestServer(t, newMockClient(), nil)
	w := s.do(t, http.MethodPut, "/query", `{"query":"`+strings.Repeat("x", 101)+`"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandler_Health(t *testing.T) {
	pingErr := errors.New("connection refused")
	tests := []struct {
		name       string
		health     *HealthConfig
		setup      func(s *testServer)
		wantStatus string
		wantCode   int
	}{
		{"no config", nil, nil, "healthy", http.StatusOK},
		{"healthy", &HealthConfig{Window: time.Minute, FailurePct: 50, StoragePing: func(context.Context) error { return nil }}, nil, "healthy", http.StatusOK},
		{"storage down", &HealthConfig{Window: time.Minute, FailurePct: 50, StoragePing: func(context.Context) error { return pingErr }}, nil, "degraded", http.StatusServiceUnavailable},
		{"failure rate", &HealthConfig{Window: time.Minute, FailurePct: 50}, func(s *testServer) {
			s.handler.tracker.RecordFailure()
			s.handler.tracker.RecordFailure()
			s.handler.tracker.RecordSuccess()
		}, "degraded", http.StatusServiceUnavailable},
		{"shutting down", &HealthConfig{Window: time.Minute, FailurePct: 50}, func(s *testServer) {
			s.handler.SetShuttingDown(true)
		}, "shutting-down", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, newMockClient(), tt.health)
			if tt.setup != nil {
				tt.setup(s)
			}
			w := s.do(t, http.MethodGet, "/health", "")
			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", body["status"], tt.wantStatus)
			}
			if body["service"] != "weather-search" {
				t.Errorf("service = %v", body["service"])
			}
		})
	}
}

func TestHandler_Health_NotFoundDoesNotDegrade(t *testing.T) {
	s := newTestServer(t, newMockClient(), &HealthConfig{Window: time.Minute, FailurePct: 50})
	for i := 0; i < 5; i++ {
		s.do(t, http.MethodPost, "/search", `{"query":"Atlantis"}`)
	}
	if w := s.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d after not-found lookups, want 200", w.Code)
	}
}

func TestHandler_Health_LogsTransition(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	backend := storage.NewMemoryStore()
	session := app.NewSession(newMockClient(), recent.NewStore(backend, "memory", 5, nil), app.Config{}, nil)
	h := NewHandler(session, nil, validation.DefaultBounds, &HealthConfig{Window: time.Minute, FailurePct: 50}, zap.New(core))

	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	h.SetShuttingDown(true)
	h.GetHealth(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["current_status"]; got != "shutting-down" {
		t.Errorf("current_status = %v", got)
	}
}
