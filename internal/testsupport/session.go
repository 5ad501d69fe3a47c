package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNoSuchFile is returned by FakeSession for unknown names
var ErrNoSuchFile = errors.New("550 no such file")

// RemoteFile is one file held by FakeSession
type RemoteFile struct {
	Content    []byte
	ModifiedAt time.Time
}

// FakeSession is an in-memory ftpclient.Session with a flat namespace per
// directory. Listings are rendered in the MS-DOS style used by the game
// servers.
type FakeSession struct {
	mu      sync.Mutex
	cwd     string
	dirs    map[string]map[string]*RemoteFile
	order   map[string][]string
	deleted []string

	// DeleteErr, keyed by name, makes Delete fail for that name
	DeleteErr map[string]error
	// RetrieveErr makes every Retrieve fail
	RetrieveErr error
	// RawListing, when set, replaces the rendered listing text
	RawListing string

	Retrieves int
	Closed    bool
}

// NewFakeSession creates an empty fake with the working directory at "/"
func NewFakeSession() *FakeSession {
	return &FakeSession{
		cwd:       "/",
		dirs:      map[string]map[string]*RemoteFile{"/": {}},
		order:     map[string][]string{},
		DeleteErr: map[string]error{},
	}
}

// Put creates or replaces dir/name. Listing order is creation order.
func (f *FakeSession) Put(dir, name string, content []byte, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir = cleanDir(dir)
	if f.dirs[dir] == nil {
		f.dirs[dir] = map[string]*RemoteFile{}
	}
	if _, ok := f.dirs[dir][name]; !ok {
		f.order[dir] = append(f.order[dir], name)
	}
	f.dirs[dir][name] = &RemoteFile{Content: content, ModifiedAt: modified}
}

// PutLog stores a CR-LF joined log in the root directory
func (f *FakeSession) PutLog(name string, lines ...string) {
	f.Put("/", name, []byte(strings.Join(lines, "\r\n")), time.Now())
}

// Has reports whether dir/name exists
func (f *FakeSession) Has(dir, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.dirs[cleanDir(dir)][name]
	return ok
}

// Deleted returns deleted names in deletion order
func (f *FakeSession) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *FakeSession) ChangeDir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p == "" {
		return nil
	}
	target := p
	if !path.IsAbs(target) {
		target = path.Join(f.cwd, target)
	}
	target = cleanDir(target)
	if _, ok := f.dirs[target]; !ok {
		return fmt.Errorf("CWD %s: %w", p, ErrNoSuchFile)
	}
	f.cwd = target
	return nil
}

func (f *FakeSession) NameList(ctx context.Context, p string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order[f.cwd]...), nil
}

func (f *FakeSession) List(ctx context.Context, p string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RawListing != "" {
		return f.RawListing, nil
	}

	names := append([]string(nil), f.order[f.cwd]...)
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		file := f.dirs[f.cwd][name]
		fmt.Fprintf(&b, "%s %20d %s\r\n", file.ModifiedAt.In(time.Local).Format("01-02-06  03:04PM"), len(file.Content), name)
	}
	return b.String(), nil
}

func (f *FakeSession) Retrieve(ctx context.Context, name string, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Retrieves++
	if f.RetrieveErr != nil {
		return f.RetrieveErr
	}
	file, ok := f.lookup(name)
	if !ok {
		return fmt.Errorf("RETR %s: %w", name, ErrNoSuchFile)
	}
	_, err := w.Write(file.Content)
	return err
}

func (f *FakeSession) Size(ctx context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.lookup(name)
	if !ok {
		return 0, fmt.Errorf("SIZE %s: %w", name, ErrNoSuchFile)
	}
	return int64(len(file.Content)), nil
}

func (f *FakeSession) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.DeleteErr[name]; err != nil {
		return err
	}
	if _, ok := f.dirs[f.cwd][name]; !ok {
		return fmt.Errorf("DELE %s: %w", name, ErrNoSuchFile)
	}
	delete(f.dirs[f.cwd], name)
	order := f.order[f.cwd][:0]
	for _, n := range f.order[f.cwd] {
		if n != name {
			order = append(order, n)
		}
	}
	f.order[f.cwd] = order
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *FakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// lookup resolves name against the working directory; callers hold mu
func (f *FakeSession) lookup(name string) (*RemoteFile, bool) {
	dir, base := f.cwd, name
	if strings.Contains(name, "/") {
		full := name
		if !path.IsAbs(full) {
			full = path.Join(f.cwd, full)
		}
		dir, base = cleanDir(path.Dir(full)), path.Base(full)
	}
	file, ok := f.dirs[dir][base]
	return file, ok
}

func cleanDir(dir string) string {
	if dir == "" {
		return "/"
	}
	return path.Clean("/" + dir)
}
