package search

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"recon/internal/search/models"
	"recon/pkg/platform/sentinel"
)

// ErrNotFound is returned when a search row does not exist.
var ErrNotFound = sentinel.ErrNotFound

// InMemory is a process-local search store.
type InMemory struct {
	mu       sync.RWMutex
	searches map[uuid.UUID]*models.Search
}

func NewInMemory() *InMemory {
	return &InMemory{searches: make(map[uuid.UUID]*models.Search)}
}

func (s *InMemory) Create(_ context.Context, search *models.Search) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.searches[search.ID]; exists {
		return sentinel.ErrConflict
	}
	s.searches[search.ID] = search.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Search, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found, ok := s.searches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

// Transition overwrites the stored row only if its status still equals from.
func (s *InMemory) Transition(_ context.Context, search *models.Search, from models.SearchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.searches[search.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return sentinel.ErrInvalidState
	}
	s.searches[search.ID] = search.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.searches[id]; !ok {
		return ErrNotFound
	}
	delete(s.searches, id)
	return nil
}

func (s *InMemory) List(_ context.Context, filter models.ListFilter) (*models.SearchPage, error) {
	filter.Normalize()

	s.mu.RLock()
	matched := make([]*models.Search, 0, len(s.searches))
	for _, search := range s.searches {
		if filter.Matches(search) {
			matched = append(matched, search.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &models.SearchPage{Total: len(matched), Page: filter.Page, Size: filter.Size, Items: []*models.Search{}}
	start := filter.Offset()
	if start >= len(matched) {
		return page, nil
	}
	end := start + filter.Size
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[start:end]
	return page, nil
}

func (s *InMemory) Overview(_ context.Context) (*models.Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &models.Overview{
		ByStatus: make(map[models.SearchStatus]int),
		ByType:   make(map[models.SearchType]int),
	}
	for _, search := range s.searches {
		out.Total++
		out.ByStatus[search.Status]++
		out.ByType[search.Type]++
	}
	return out, nil
}
