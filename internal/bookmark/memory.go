package bookmark

import (
	"context"
	"fmt"
	"sync"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

// MemoryStore is a non-durable Store, used for dry runs and tests
type MemoryStore struct {
	mu        sync.Mutex
	bookmarks map[string]domain.Bookmark

	// FailInsert and FailUpdate, when set, are returned instead of writing
	FailInsert error
	FailUpdate error
}

// NewMemoryStore creates a store pre-filled with the given bookmarks
func NewMemoryStore(initial ...domain.Bookmark) *MemoryStore {
	s := &MemoryStore{bookmarks: make(map[string]domain.Bookmark)}
	for _, bm := range initial {
		s.bookmarks[bm.Identity.Key()] = bm
	}
	return s
}

// LoadAll returns a copy of all bookmarks
func (s *MemoryStore) LoadAll(ctx context.Context) ([]domain.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Bookmark, 0, len(s.bookmarks))
	for _, bm := range s.bookmarks {
		result = append(result, bm)
	}
	return result, nil
}

// Insert stores a new identity
func (s *MemoryStore) Insert(ctx context.Context, id domain.LogIdentity, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailInsert != nil {
		return s.FailInsert
	}
	if _, ok := s.bookmarks[id.Key()]; ok {
		return fmt.Errorf("failed to insert bookmark %s: %w", id, ErrExists)
	}
	s.bookmarks[id.Key()] = domain.Bookmark{Identity: id, Offset: offset}
	return nil
}

// Update moves a known identity
func (s *MemoryStore) Update(ctx context.Context, id domain.LogIdentity, offset int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpdate != nil {
		return s.FailUpdate
	}
	if _, ok := s.bookmarks[id.Key()]; !ok {
		return fmt.Errorf("failed to update bookmark %s: %w", id, ErrNotFound)
	}
	s.bookmarks[id.Key()] = domain.Bookmark{Identity: id, Offset: offset}
	return nil
}

// Get returns the stored offset of id
func (s *MemoryStore) Get(id domain.LogIdentity) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bm, ok := s.bookmarks[id.Key()]
	return bm.Offset, ok
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
