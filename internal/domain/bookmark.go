package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bookmark is the read position of one log instance.
// Offset counts lines already delivered, from the start of the file.
type Bookmark struct {
	Identity LogIdentity
	Offset   int
}

// HarvestedBatch is the set of lines delivered by a single poll of one file
type HarvestedBatch struct {
	PollID      uuid.UUID
	Identity    LogIdentity
	FirstLine   int // Line index of Lines[0] within the file
	Lines       []string
	HarvestedAt time.Time
}

// Empty reports whether the poll delivered nothing
func (b *HarvestedBatch) Empty() bool {
	return len(b.Lines) == 0
}
