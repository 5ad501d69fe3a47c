package domain

import (
	"fmt"
	"strings"
	"time"
)

// identityKeySeparator splits path and open time in LogIdentity.Key.
// RFC3339 never contains it, so the last occurrence is always the separator.
const identityKeySeparator = "|"

// LogIdentity identifies one logical log instance: the remote path plus the
// open time declared in the file's own header. A rotation at the same path
// yields a new identity.
type LogIdentity struct {
	Path     string
	OpenTime time.Time
}

// NewLogIdentity builds an identity with the open time normalized to UTC at
// second resolution, so identities compare structurally.
func NewLogIdentity(path string, openTime time.Time) LogIdentity {
	return LogIdentity{
		Path:     path,
		OpenTime: openTime.UTC().Truncate(time.Second),
	}
}

// Key returns the canonical string form used for map keys and store keys
func (id LogIdentity) Key() string {
	return id.Path + identityKeySeparator + id.OpenTime.UTC().Format(time.RFC3339)
}

// Equal reports whether both identities name the same log instance
func (id LogIdentity) Equal(other LogIdentity) bool {
	return id.Path == other.Path && id.OpenTime.Equal(other.OpenTime)
}

// Compare orders identities by path, then by open time
func (id LogIdentity) Compare(other LogIdentity) int {
	if c := strings.Compare(id.Path, other.Path); c != 0 {
		return c
	}
	return id.OpenTime.Compare(other.OpenTime)
}

func (id LogIdentity) String() string {
	return fmt.Sprintf("%s@%s", id.Path, id.OpenTime.UTC().Format(time.RFC3339))
}

// ParseIdentityKey reverses LogIdentity.Key
func ParseIdentityKey(key string) (LogIdentity, error) {
	idx := strings.LastIndex(key, identityKeySeparator)
	if idx < 0 {
		return LogIdentity{}, fmt.Errorf("invalid identity key %q: missing separator", key)
	}

	openTime, err := time.Parse(time.RFC3339, key[idx+1:])
	if err != nil {
		return LogIdentity{}, fmt.Errorf("invalid identity key %q: %w", key, err)
	}

	return NewLogIdentity(key[:idx], openTime), nil
}
