package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/client"
	"github.com/kjstillabower/weather-search/internal/models"
	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/recent"
)

// ErrNoQuery is returned when there is nothing to look up: an empty query with an
// empty input field, or a refresh with no reading displayed. No request is issued
// and state is untouched.
var ErrNoQuery = errors.New("no city to look up")

type lookupKind string

const (
	kindSearch  lookupKind = "search"
	kindSelect  lookupKind = "select"
	kindRefresh lookupKind = "refresh"
)

// records reports whether a successful lookup of this kind updates the history.
func (k lookupKind) records() bool {
	return k != kindRefresh
}

// Config controls the loading indicator.
type Config struct {
	// MinLoadingVisible keeps Loading true for this long after the response arrives.
	MinLoadingVisible time.Duration
	// DelayOnFailure applies MinLoadingVisible to failed lookups too.
	DelayOnFailure bool
}

// Session holds the application state and runs lookups against it. Overlapping
// lookups are allowed; whichever response arrives last overwrites the reading.
type Session struct {
	mu          sync.Mutex
	state       State
	outstanding int

	client client.WeatherClient
	recent *recent.Store
	cfg    Config
	logger *zap.Logger

	timers sync.WaitGroup
	after  func(time.Duration) <-chan time.Time
}

// NewSession seeds state from the store's current list and last city. Call
// store.Load (or Clear) first.
func NewSession(c client.WeatherClient, store *recent.Store, cfg Config, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		state:  initialState(store.List(), store.LastCity()),
		client: c,
		recent: store,
		cfg:    cfg,
		logger: logger,
		after:  time.After,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// SetQuery updates the input field.
func (s *Session) SetQuery(q string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = withQuery(s.state, q)
	return s.state.clone()
}

// ToggleTheme flips between dark and light.
func (s *Session) ToggleTheme() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = toggleTheme(s.state)
	return s.state.clone()
}

// ToggleDropdown flips dropdown visibility.
func (s *Session) ToggleDropdown() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = setDropdown(s.state, !s.state.DropdownVisible)
	return s.state.clone()
}

// Search looks up query, or the current input field when query is blank. On
// success the city is recorded in the history.
func (s *Session) Search(ctx context.Context, query string) (models.WeatherReading, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		s.mu.Lock()
		q = strings.TrimSpace(s.state.Query)
		s.mu.Unlock()
	}
	if q == "" {
		return models.WeatherReading{}, ErrNoQuery
	}
	return s.lookup(ctx, q, kindSearch)
}

// SelectRecent closes the dropdown and runs a full search for city.
func (s *Session) SelectRecent(ctx context.Context, city string) (models.WeatherReading, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return models.WeatherReading{}, ErrNoQuery
	}
	s.mu.Lock()
	s.state = setDropdown(withQuery(s.state, city), false)
	s.mu.Unlock()
	return s.lookup(ctx, city, kindSelect)
}

// Refresh re-fetches the displayed city by its canonical name. It never touches
// the history.
func (s *Session) Refresh(ctx context.Context) (models.WeatherReading, error) {
	s.mu.Lock()
	var city string
	if s.state.Reading != nil {
		city = s.state.Reading.City
	}
	s.mu.Unlock()
	if city == "" {
		return models.WeatherReading{}, ErrNoQuery
	}
	return s.lookup(ctx, city, kindRefresh)
}

// DeleteRecent removes city from the history. Deleting an absent city is a no-op.
func (s *Session) DeleteRecent(ctx context.Context, city string) (recent.List, error) {
	list, err := s.recent.Delete(ctx, city)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = withRecent(s.state, s.recent.List())
	return list, err
}

// HasReading reports whether a reading is displayed.
func (s *Session) HasReading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Reading != nil
}

// Drain waits until every deferred loading clear has fired, or ctx is done.
func (s *Session) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.timers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type lookupResult struct {
	reading models.WeatherReading
	err     error
}

// lookup runs the retrieval as its own task and joins its result with the
// minimum-visible loading timer, which starts when the response arrives.
func (s *Session) lookup(ctx context.Context, city string, kind lookupKind) (models.WeatherReading, error) {
	logger := observability.LoggerFrom(ctx, s.logger).With(zap.String("city", city), zap.String("kind", string(kind)))

	s.mu.Lock()
	s.outstanding++
	s.state = beginLookup(s.state)
	s.mu.Unlock()
	observability.LookupsOutstanding.Inc()

	res := <-s.runTask(ctx, city)

	if res.err != nil {
		category := client.CategorizeError(res.err)
		observability.LookupsTotal.WithLabelValues(string(kind), string(category)).Inc()
		logger.Info("lookup failed", zap.String("category", string(category)), zap.Error(res.err))
		s.settle(s.cfg.DelayOnFailure)
		return models.WeatherReading{}, res.err
	}

	// Persist outside s.mu; the store serializes its own writes.
	if kind.records() {
		if _, err := s.recent.Record(ctx, city); err != nil {
			logger.Warn("recent cities not persisted", zap.Error(err))
		}
		if err := s.recent.SetLastCity(ctx, city); err != nil {
			logger.Warn("last city not persisted", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.state = applySuccess(s.state, res.reading, city)
	if kind.records() {
		s.state = withRecent(s.state, s.recent.List())
	}
	s.mu.Unlock()

	observability.LookupsTotal.WithLabelValues(string(kind), "success").Inc()
	logger.Debug("lookup succeeded", zap.String("canonical", res.reading.City))
	s.settle(true)
	return res.reading, nil
}

func (s *Session) runTask(ctx context.Context, city string) <-chan lookupResult {
	out := make(chan lookupResult, 1)
	go func() {
		reading, err := s.client.Lookup(ctx, city)
		out <- lookupResult{reading: reading, err: err}
	}()
	return out
}

// settle releases one outstanding lookup, either now or after MinLoadingVisible.
// The deferred release cannot be cancelled.
func (s *Session) settle(delay bool) {
	if !delay || s.cfg.MinLoadingVisible <= 0 {
		s.release()
		return
	}
	s.timers.Add(1)
	timer := s.after(s.cfg.MinLoadingVisible)
	go func() {
		defer s.timers.Done()
		<-timer
		s.release()
	}()
}

func (s *Session) release() {
	s.mu.Lock()
	s.outstanding--
	s.state = finishLookup(s.state, s.outstanding)
	s.mu.Unlock()
	observability.LookupsOutstanding.Dec()
}
