package recent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-search/internal/observability"
	"github.com/kjstillabower/weather-search/internal/storage"
)

// Persisted keys, matching the names the browser version used in local storage.
const (
	KeyRecentCities = "recentCities"
	KeyLastCity     = "lastCity"
)

// Store owns the recent-city list and writes it through to a storage backend after
// every mutation. The in-memory list is authoritative; a failed write is reported
// but does not roll the mutation back.
type Store struct {
	mu       sync.Mutex
	backend  storage.Store
	label    string
	max      int
	list     List
	lastCity string
	logger   *zap.Logger
}

// NewStore wraps backend. label names the backend in metrics.
func NewStore(backend storage.Store, label string, max int, logger *zap.Logger) *Store {
	if max <= 0 {
		max = DefaultMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, label: label, max: max, logger: logger}
}

// Load reads the persisted list and last city into memory. A corrupt list is
// logged and treated as empty so a bad write cannot wedge startup.
func (s *Store) Load(ctx context.Context) (List, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok, err := s.backend.Get(ctx, KeyRecentCities)
	if err != nil {
		observability.StorageErrorsTotal.WithLabelValues(s.label, "get").Inc()
		return nil, "", fmt.Errorf("load recent cities: %w", err)
	}
	var list List
	if ok {
		if err := json.Unmarshal(raw, &list); err != nil {
			s.logger.Warn("discarding unreadable recent cities", zap.Error(err))
			list = nil
		}
	}
	// re-normalize in case the stored list predates the current max or dedupe rule
	normalized := List{}
	for i := len(list) - 1; i >= 0; i-- {
		normalized = Record(normalized, list[i], s.max)
	}

	last, ok, err := s.backend.Get(ctx, KeyLastCity)
	if err != nil {
		observability.StorageErrorsTotal.WithLabelValues(s.label, "get").Inc()
		return nil, "", fmt.Errorf("load last city: %w", err)
	}
	s.list = normalized
	s.lastCity = ""
	if ok {
		s.lastCity = strings.TrimSpace(string(last))
	}
	observability.RecentListSize.Set(float64(len(s.list)))
	return s.snapshotLocked(), s.lastCity, nil
}

// List returns a copy of the current list.
func (s *Store) List() List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastCity returns the last successfully searched city.
func (s *Store) LastCity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCity
}

// Record moves city to the front of the list and persists it.
func (s *Store) Record(ctx context.Context, city string) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = Record(s.list, city, s.max)
	observability.RecentMutationsTotal.WithLabelValues("record").Inc()
	return s.snapshotLocked(), s.persistLocked(ctx)
}

// Delete removes city from the list and persists it. Absent cities are a no-op
// and nothing is written.
func (s *Store) Delete(ctx context.Context, city string) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.list.Contains(city) {
		return s.snapshotLocked(), nil
	}
	s.list = Delete(s.list, city)
	observability.RecentMutationsTotal.WithLabelValues("delete").Inc()
	return s.snapshotLocked(), s.persistLocked(ctx)
}

// SetLastCity persists the last successfully searched city.
func (s *Store) SetLastCity(ctx context.Context, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCity = strings.TrimSpace(city)
	if err := s.backend.Set(ctx, KeyLastCity, []byte(s.lastCity)); err != nil {
		return s.writeFailed("set", KeyLastCity, err)
	}
	return nil
}

// Clear empties the list and removes both persisted keys.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = List{}
	s.lastCity = ""
	observability.RecentMutationsTotal.WithLabelValues("clear").Inc()
	observability.RecentListSize.Set(0)

	var errs []error
	for _, key := range []string{KeyRecentCities, KeyLastCity} {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, s.writeFailed("delete", key, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) persistLocked(ctx context.Context) error {
	observability.RecentListSize.Set(float64(len(s.list)))
	raw, err := json.Marshal(s.list)
	if err != nil {
		return fmt.Errorf("encode recent cities: %w", err)
	}
	if err := s.backend.Set(ctx, KeyRecentCities, raw); err != nil {
		return s.writeFailed("set", KeyRecentCities, err)
	}
	return nil
}

func (s *Store) writeFailed(op, key string, err error) error {
	observability.StorageErrorsTotal.WithLabelValues(s.label, op).Inc()
	s.logger.Error("persist recent state", zap.String("backend", s.label), zap.String("key", key), zap.Error(err))
	return fmt.Errorf("persist %s: %w", key, err)
}

func (s *Store) snapshotLocked() List {
	return append(List{}, s.list...)
}
