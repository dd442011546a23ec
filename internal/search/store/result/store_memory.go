package result

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"recon/internal/search/models"
	"recon/pkg/platform/sentinel"
)

// SearchFinder resolves the search a result belongs to.
type SearchFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Search, error)
}

// InMemory keeps results per search in insertion order.
type InMemory struct {
	mu       sync.RWMutex
	bySearch map[uuid.UUID][]*models.Result
	searches SearchFinder
}

type MemoryOption func(*InMemory)

// WithSearches makes Create reject results whose search does not exist,
// mirroring the foreign key on the postgres table.
func WithSearches(f SearchFinder) MemoryOption {
	return func(s *InMemory) {
		s.searches = f
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{bySearch: make(map[uuid.UUID][]*models.Result)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Create(ctx context.Context, result *models.Result) error {
	if s.searches != nil {
		if _, err := s.searches.FindByID(ctx, result.SearchID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("create result: %w", sentinel.ErrNotFound)
			}
			return fmt.Errorf("create result: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.bySearch[result.SearchID] {
		if existing.ID == result.ID {
			return sentinel.ErrConflict
		}
	}
	cp := *result
	s.bySearch[result.SearchID] = append(s.bySearch[result.SearchID], &cp)
	return nil
}

func (s *InMemory) ListBySearch(_ context.Context, searchID uuid.UUID) ([]*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.bySearch[searchID]
	out := make([]*models.Result, 0, len(stored))
	for _, r := range stored {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) DeleteBySearch(_ context.Context, searchID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.bySearch[searchID])
	delete(s.bySearch, searchID)
	return n, nil
}

func (s *InMemory) StatsBySearch(ctx context.Context, searchID uuid.UUID) (map[string]models.SourceStats, error) {
	results, err := s.ListBySearch(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return models.Aggregate(results), nil
}
