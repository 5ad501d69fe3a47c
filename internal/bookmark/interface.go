package bookmark

import (
	"context"
	"errors"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

var (
	// ErrExists is returned by Insert when the identity is already stored
	ErrExists = errors.New("bookmark already exists")

	// ErrNotFound is returned by Update when the identity is not stored
	ErrNotFound = errors.New("bookmark not found")
)

// Store persists bookmarks keyed by log identity.
// Implementations: BoltDB (default), SQL (postgres, sqlite), memory.
// Writes must be durable before returning nil.
type Store interface {
	// LoadAll returns every stored bookmark
	LoadAll(ctx context.Context) ([]domain.Bookmark, error)

	// Insert creates the bookmark for a newly seen identity.
	// Returns ErrExists if the identity is already stored.
	Insert(ctx context.Context, id domain.LogIdentity, offset int) error

	// Update moves the bookmark of a known identity.
	// Returns ErrNotFound if the identity is not stored.
	Update(ctx context.Context, id domain.LogIdentity, offset int) error

	// Close releases the underlying handle
	Close() error
}
