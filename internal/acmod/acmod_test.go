package acmod

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"agentic-edit/internal/workspace"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return NewStore(ws), ws.Root()
}

func TestParseAndRender(t *testing.T) {
	fm, body, err := Parse("---\nname: core\nowners: [a]\n---\n# Core\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fm["name"] != "core" || body != "# Core\n" {
		t.Fatalf("fm = %v body = %q", fm, body)
	}
	out, err := Render(map[string]any{"name": "core"}, "# Core")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "---\nname: core\n---\n# Core\n" {
		t.Fatalf("Render = %q", out)
	}
	if _, _, err := Parse("---\nname: x\n"); err == nil {
		t.Fatalf("expected unclosed front matter error")
	}
}

func TestReadMissing(t *testing.T) {
	s, _ := newStore(t)
	if _, err := s.Read(context.Background(), "pkg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteReplaceThenMerge(t *testing.T) {
	s, root := newStore(t)
	ctx := context.Background()
	d, err := s.Write(ctx, "pkg/core", "---\nname: core\nstatus: draft\n---\n# Core\nOld body.\n", ModeReplace)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if d.Path != "pkg/core/.ac.mod.md" {
		t.Fatalf("path = %s", d.Path)
	}
	if _, err := os.Stat(filepath.Join(root, "pkg", "core", FileName)); err != nil {
		t.Fatalf("descriptor not written: %v", err)
	}

	d, err = s.Write(ctx, "pkg/core", "---\nstatus: stable\n---\n", ModeMerge)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if d.FrontMatter["name"] != "core" || d.FrontMatter["status"] != "stable" {
		t.Fatalf("front matter = %v", d.FrontMatter)
	}
	if !strings.Contains(d.Body, "Old body.") {
		t.Fatalf("body lost on merge: %q", d.Body)
	}

	read, err := s.Read(ctx, "pkg/core/.ac.mod.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if read.FrontMatter["status"] != "stable" || read.Body != d.Body {
		t.Fatalf("read = %+v", read)
	}
}

func TestWriteRejectsBadModeAndEscape(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	if _, err := s.Write(ctx, "pkg", "x", "append"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if _, err := s.Write(ctx, "../outside", "x", ModeReplace); !errors.Is(err, workspace.ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
}
