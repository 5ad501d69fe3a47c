package domain

import "time"

// ListingEntry is one parsed line of a remote directory listing.
// It is never persisted.
type ListingEntry struct {
	Name       string
	Size       int64
	IsDir      bool // Size column held <DIR>
	ModifiedAt time.Time
}
