package harvest

import (
	"context"
	"fmt"
	"sort"

	"github.com/SteelMorgan/rs2-log-harvester/internal/bookmark"
	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
	"github.com/rs/zerolog/log"
)

// Tracker mirrors the bookmark store in memory for one session.
// It is the source of truth for "seen this instance" while polling and is
// changed only after a successful store write.
type Tracker struct {
	offsets map[string]domain.Bookmark
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{offsets: make(map[string]domain.Bookmark)}
}

// LoadTracker seeds a tracker with every bookmark in store
func LoadTracker(ctx context.Context, store bookmark.Store) (*Tracker, error) {
	bookmarks, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}

	t := NewTracker()
	for _, bm := range bookmarks {
		t.offsets[bm.Identity.Key()] = bm
	}

	log.Info().
		Int("bookmarks", len(t.offsets)).
		Msg("Loaded cached modifications")

	return t, nil
}

// Lookup returns the offset of id and whether it has been seen
func (t *Tracker) Lookup(id domain.LogIdentity) (int, bool) {
	bm, ok := t.offsets[id.Key()]
	return bm.Offset, ok
}

// Len returns the number of tracked identities
func (t *Tracker) Len() int {
	return len(t.offsets)
}

// Snapshot returns all bookmarks ordered by identity
func (t *Tracker) Snapshot() []domain.Bookmark {
	result := make([]domain.Bookmark, 0, len(t.offsets))
	for _, bm := range t.offsets {
		result = append(result, bm)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Identity.Compare(result[j].Identity) < 0
	})
	return result
}

func (t *Tracker) set(id domain.LogIdentity, offset int) {
	t.offsets[id.Key()] = domain.Bookmark{Identity: id, Offset: offset}
}
