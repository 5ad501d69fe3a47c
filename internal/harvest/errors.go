package harvest

import (
	"errors"
	"fmt"

	"github.com/SteelMorgan/rs2-log-harvester/internal/domain"
)

var (
	// ErrMalformedHeader marks a fetched log whose first line has no usable open time
	ErrMalformedHeader = errors.New("malformed log header")

	// ErrCachePersist marks a failed bookmark write
	ErrCachePersist = errors.New("bookmark persist failed")
)

// MalformedHeaderError aborts a poll: no lines are delivered and no bookmark moves
type MalformedHeaderError struct {
	Path   string
	Header string
	Reason string
	Err    error
}

func (e *MalformedHeaderError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s (header %q)", e.Path, ErrMalformedHeader, e.Reason, e.Header)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedHeaderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedHeader}
	}
	return []error{ErrMalformedHeader, e.Err}
}

// CachePersistError aborts a poll when the bookmark store rejects a write.
// The in-memory tracker is left at its previous value, so a retry repeats
// the same write.
type CachePersistError struct {
	Op       string // insert or update
	Identity domain.LogIdentity
	Offset   int
	Err      error
}

func (e *CachePersistError) Error() string {
	return fmt.Sprintf("%s: %s %s at offset %d: %v", ErrCachePersist, e.Op, e.Identity, e.Offset, e.Err)
}

func (e *CachePersistError) Unwrap() []error {
	return []error{ErrCachePersist, e.Err}
}
