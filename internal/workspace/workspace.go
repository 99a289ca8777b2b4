// Package workspace confines file access to a sandbox root and commits writes atomically.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrEmptyPath     = errors.New("empty path")
	ErrOutsideRoot   = errors.New("path escapes the workspace root")
	ErrIsDirectory   = errors.New("path is a directory")
	ErrExists        = errors.New("file already exists")
	ErrParentMissing = errors.New("parent directory does not exist")
	ErrNotDirectory  = errors.New("not a directory")
)

// Path is a resolved location inside the workspace.
type Path struct {
	// Rel is slash separated and relative to the root ("." for the root itself).
	Rel string
	Abs string
}

type Workspace struct {
	root  string
	locks *pathLocks

	// writeData is swapped in tests to simulate a crash half way through a write.
	writeData func(w io.Writer, data []byte) error
}

// New resolves root to an absolute, symlink-free directory.
func New(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: %w", abs, ErrNotDirectory)
	}
	return &Workspace{root: filepath.Clean(abs), locks: newPathLocks(), writeData: writeAll}, nil
}

func (w *Workspace) Root() string { return w.root }

// Resolve maps a user supplied path onto the workspace. Relative paths are joined to
// the root; absolute paths must already lie inside it. Symlinks on the existing part of
// the path are followed so a link pointing outside the root is rejected too.
func (w *Workspace) Resolve(raw string) (Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Path{}, ErrEmptyPath
	}
	var abs string
	if filepath.IsAbs(raw) {
		abs = filepath.Clean(raw)
	} else {
		abs = filepath.Clean(filepath.Join(w.root, raw))
	}
	if !w.within(abs) {
		return Path{}, fmt.Errorf("%s: %w", raw, ErrOutsideRoot)
	}
	resolved, err := evalExistingPrefix(abs)
	if err != nil {
		return Path{}, err
	}
	if !w.within(resolved) {
		return Path{}, fmt.Errorf("%s: %w", raw, ErrOutsideRoot)
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return Path{}, fmt.Errorf("%s: %w", raw, ErrOutsideRoot)
	}
	return Path{Rel: filepath.ToSlash(rel), Abs: abs}, nil
}

func (w *Workspace) within(abs string) bool {
	if abs == w.root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(abs, strings.TrimSuffix(w.root, sep)+sep)
}

// evalExistingPrefix resolves symlinks on the longest existing ancestor of abs and
// re-appends the missing tail.
func evalExistingPrefix(abs string) (string, error) {
	cur := abs
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// ReadFile returns the content of a regular file. max <= 0 disables the size cap;
// otherwise larger files are cut at max bytes and truncated is set.
func (w *Workspace) ReadFile(p Path, max int64) (data []byte, truncated bool, err error) {
	info, err := os.Stat(p.Abs)
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		return nil, false, fmt.Errorf("%s: %w", p.Rel, ErrIsDirectory)
	}
	f, err := os.Open(p.Abs)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()
	if max <= 0 || info.Size() <= max {
		data, err = io.ReadAll(f)
		return data, false, err
	}
	data, err = io.ReadAll(io.LimitReader(f, max))
	return data, true, err
}

type WriteOptions struct {
	CreateOnly bool
	CreateDirs bool
}

// WriteFileAtomic replaces p with data via a temp file in the same directory and a
// rename, so readers observe either the old or the new content. The existing file
// mode is preserved.
func (w *Workspace) WriteFileAtomic(p Path, data []byte, opts WriteOptions) (created bool, err error) {
	mode := fs.FileMode(0o644)
	info, statErr := os.Stat(p.Abs)
	switch {
	case statErr == nil:
		if info.IsDir() {
			return false, fmt.Errorf("%s: %w", p.Rel, ErrIsDirectory)
		}
		if opts.CreateOnly {
			return false, fmt.Errorf("%s: %w", p.Rel, ErrExists)
		}
		mode = info.Mode().Perm()
	case errors.Is(statErr, fs.ErrNotExist):
		created = true
	default:
		return false, statErr
	}

	dir := filepath.Dir(p.Abs)
	if _, err := os.Stat(dir); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		if !opts.CreateDirs {
			return false, fmt.Errorf("%s: %w", p.Rel, ErrParentMissing)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, err
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.Abs)+".tmp-*")
	if err != nil {
		return false, err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err := w.writeData(tmp, data); err != nil {
		return false, err
	}
	if err := tmp.Sync(); err != nil {
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return false, err
	}
	if err := os.Rename(tmpName, p.Abs); err != nil {
		return false, err
	}
	committed = true
	return created, nil
}

func writeAll(w io.Writer, data []byte) error {
	_, err := w.Write(data)
	return err
}

// Lock serializes mutations of a single path. The returned func releases it.
func (w *Workspace) Lock(p Path) func() {
	return w.locks.lock(p.Abs)
}

type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: map[string]*pathLock{}}
}

func (l *pathLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &pathLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}
