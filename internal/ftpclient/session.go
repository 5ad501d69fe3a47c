package ftpclient

import (
	"context"
	"io"
)

// Session is a stateful connection to a remote file server.
// It keeps a working directory and carries one command at a time,
// so it must not be shared between concurrent callers.
type Session interface {
	// ChangeDir changes the working directory; an empty path is a no-op
	ChangeDir(ctx context.Context, path string) error

	// NameList returns the entry names of path (NLST)
	NameList(ctx context.Context, path string) ([]string, error)

	// List returns the raw text of a directory listing (LIST)
	List(ctx context.Context, path string) (string, error)

	// Retrieve streams the binary content of name into w (RETR)
	Retrieve(ctx context.Context, name string, w io.Writer) error

	// Size returns the size of name in bytes (SIZE)
	Size(ctx context.Context, name string) (int64, error)

	// Delete removes name (DELE)
	Delete(ctx context.Context, name string) error

	// Close ends the session. Both the graceful quit and the connection
	// close are attempted even if the first fails.
	Close() error
}
