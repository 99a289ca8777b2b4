package workspace

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ws
}

func TestResolveRejectsEscapes(t *testing.T) {
	ws := newTestWorkspace(t)
	for _, raw := range []string{"../../etc/passwd", "/etc/passwd", "a/../../b", ".."} {
		if _, err := ws.Resolve(raw); !errors.Is(err, ErrOutsideRoot) {
			t.Fatalf("Resolve(%q) err = %v, want ErrOutsideRoot", raw, err)
		}
	}
	p, err := ws.Resolve("a/../b.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Rel != "b.txt" {
		t.Fatalf("Rel = %q, want b.txt", p.Rel)
	}
	if _, err := ws.Resolve("  "); !errors.Is(err, ErrEmptyPath) {
		t.Fatalf("expected ErrEmptyPath, got %v", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	ws := newTestWorkspace(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(ws.Root(), "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if _, err := ws.Resolve("link/secret.txt"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected symlink escape to be rejected, got %v", err)
	}
}

func TestWriteFileAtomicCreatesAndReplaces(t *testing.T) {
	ws := newTestWorkspace(t)
	p, err := ws.Resolve("dir/sub/a.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, err := ws.WriteFileAtomic(p, []byte("x"), WriteOptions{}); !errors.Is(err, ErrParentMissing) {
		t.Fatalf("expected ErrParentMissing, got %v", err)
	}
	created, err := ws.WriteFileAtomic(p, []byte("hello"), WriteOptions{CreateDirs: true})
	if err != nil || !created {
		t.Fatalf("WriteFileAtomic created=%v err=%v", created, err)
	}
	created, err = ws.WriteFileAtomic(p, []byte("world"), WriteOptions{CreateDirs: true})
	if err != nil || created {
		t.Fatalf("WriteFileAtomic created=%v err=%v", created, err)
	}
	data, _, err := ws.ReadFile(p, 0)
	if err != nil || string(data) != "world" {
		t.Fatalf("ReadFile = %q, %v", data, err)
	}
	if _, err := ws.WriteFileAtomic(p, []byte("again"), WriteOptions{CreateOnly: true}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestWriteFileAtomicInterruptedKeepsOldContent(t *testing.T) {
	ws := newTestWorkspace(t)
	p, _ := ws.Resolve("a.txt")
	if _, err := ws.WriteFileAtomic(p, []byte("old content"), WriteOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	crash := errors.New("simulated crash")
	ws.writeData = func(w io.Writer, data []byte) error {
		_, _ = w.Write(data[:len(data)/2])
		return crash
	}
	if _, err := ws.WriteFileAtomic(p, []byte("brand new content"), WriteOptions{}); !errors.Is(err, crash) {
		t.Fatalf("expected simulated crash, got %v", err)
	}

	data, err := os.ReadFile(p.Abs)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "old content" {
		t.Fatalf("file corrupted: %q", data)
	}
	entries, _ := os.ReadDir(ws.Root())
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadFileDirectoryAndTruncation(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.Mkdir(filepath.Join(ws.Root(), "d"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	d, _ := ws.Resolve("d")
	if _, _, err := ws.ReadFile(d, 0); !errors.Is(err, ErrIsDirectory) {
		t.Fatalf("expected ErrIsDirectory, got %v", err)
	}
	f, _ := ws.Resolve("big.txt")
	if _, err := ws.WriteFileAtomic(f, []byte("0123456789"), WriteOptions{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, truncated, err := ws.ReadFile(f, 4)
	if err != nil || !truncated || string(data) != "0123" {
		t.Fatalf("ReadFile = %q truncated=%v err=%v", data, truncated, err)
	}
}

func TestLockSerializesSamePath(t *testing.T) {
	ws := newTestWorkspace(t)
	p, _ := ws.Resolve("a.txt")

	unlock := ws.Lock(p)
	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := ws.Lock(p)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	wg.Wait()
	if len(ws.locks.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d", len(ws.locks.locks))
	}
}
