package usecases

import (
	"log/slog"
	"sync"

	"github.com/samirrijal/fieldpins/internal/core/domain"
)

// MarkerStore is the in-memory view of all markers for this session.
// Reads return deep copies; all writes go through one mutex.
type MarkerStore struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Marker
	order []string
	log   *slog.Logger
}

// NewMarkerStore creates an empty MarkerStore.
func NewMarkerStore() *MarkerStore {
	return &MarkerStore{
		byID: make(map[string]*domain.Marker),
		log:  slog.Default().With("component", "marker_store"),
	}
}

// Upsert inserts m at the end, or replaces it in place if the id is known.
func (s *MarkerStore) Upsert(m domain.Marker) {
	c := m.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.byID[c.ID] = &c
}

func (s *MarkerStore) Get(id string) (domain.Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[id]
	if !ok {
		return domain.Marker{}, false
	}
	return m.Clone(), true
}

// List returns all markers in insertion order.
func (s *MarkerStore) List() []domain.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Marker, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

// Patch applies fn to the stored marker under the write lock. Unknown ids
// are a logged no-op. fn must not change the marker id.
func (s *MarkerStore) Patch(id string, fn func(*domain.Marker)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		s.log.Warn("patch on unknown marker", "marker_id", id)
		return false
	}
	fn(m)
	m.ID = id
	return true
}

// Replace swaps the whole content for markers, kept in the given order.
func (s *MarkerStore) Replace(markers []domain.Marker) {
	byID := make(map[string]*domain.Marker, len(markers))
	order := make([]string, 0, len(markers))
	for _, m := range markers {
		c := m.Clone()
		if _, dup := byID[c.ID]; !dup {
			order = append(order, c.ID)
		}
		byID[c.ID] = &c
	}

	s.mu.Lock()
	s.byID = byID
	s.order = order
	s.mu.Unlock()
}

func (s *MarkerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
