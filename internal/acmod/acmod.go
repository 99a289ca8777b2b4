// Package acmod reads and writes .ac.mod.md module descriptors: a markdown body with
// optional YAML front matter describing a source module.
package acmod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"agentic-edit/internal/workspace"
)

const FileName = ".ac.mod.md"

const (
	ModeReplace = "replace"
	ModeMerge   = "merge"
)

var (
	ErrNotFound    = errors.New("module descriptor not found")
	ErrInvalidMode = errors.New("invalid write mode")
)

type Descriptor struct {
	Path        string         `json:"path"`
	FrontMatter map[string]any `json:"front_matter,omitempty"`
	Body        string         `json:"body"`
}

// Parse splits a descriptor document into front matter and body.
func Parse(content string) (map[string]any, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return nil, content, nil
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, "", errors.New("front matter is not closed")
	}
	raw := rest[:end]
	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	fm := map[string]any{}
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, "", fmt.Errorf("front matter: %w", err)
	}
	return fm, body, nil
}

// Render is the inverse of Parse. Keys are emitted in sorted order.
func Render(fm map[string]any, body string) (string, error) {
	var buf bytes.Buffer
	if len(fm) > 0 {
		data, err := yaml.Marshal(fm)
		if err != nil {
			return "", err
		}
		buf.WriteString("---\n")
		buf.Write(data)
		buf.WriteString("---\n")
	}
	buf.WriteString(body)
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteString("\n")
	}
	return buf.String(), nil
}

type Store struct {
	ws *workspace.Workspace
}

func NewStore(ws *workspace.Workspace) *Store {
	return &Store{ws: ws}
}

// Locate resolves the descriptor file for a module directory (or the file itself).
func (s *Store) Locate(modulePath string) (workspace.Path, error) {
	rel := strings.TrimSpace(modulePath)
	if rel == "" {
		rel = "."
	}
	if path.Base(strings.ReplaceAll(rel, "\\", "/")) != FileName {
		rel = path.Join(rel, FileName)
	}
	return s.ws.Resolve(rel)
}

func (s *Store) Read(ctx context.Context, modulePath string) (Descriptor, error) {
	p, err := s.Locate(modulePath)
	if err != nil {
		return Descriptor{}, err
	}
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	data, err := os.ReadFile(p.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, p.Rel)
	}
	if err != nil {
		return Descriptor{}, err
	}
	fm, body, err := Parse(string(data))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", p.Rel, err)
	}
	return Descriptor{Path: p.Rel, FrontMatter: fm, Body: body}, nil
}

// Write stores content for the module. In merge mode front matter keys overlay the
// existing ones and the body is replaced only when the new body is not blank.
func (s *Store) Write(ctx context.Context, modulePath, content, mode string) (Descriptor, error) {
	if mode == "" {
		mode = ModeReplace
	}
	if mode != ModeReplace && mode != ModeMerge {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	fm, body, err := Parse(content)
	if err != nil {
		return Descriptor{}, err
	}
	p, err := s.Locate(modulePath)
	if err != nil {
		return Descriptor{}, err
	}
	unlock := s.ws.Lock(p)
	defer unlock()

	if mode == ModeMerge {
		existing, err := s.Read(ctx, modulePath)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return Descriptor{}, err
		default:
			merged := existing.FrontMatter
			if merged == nil {
				merged = map[string]any{}
			}
			for k, v := range fm {
				merged[k] = v
			}
			fm = merged
			if strings.TrimSpace(body) == "" {
				body = existing.Body
			}
		}
	}
	doc, err := Render(fm, body)
	if err != nil {
		return Descriptor{}, err
	}
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	if _, err := s.ws.WriteFileAtomic(p, []byte(doc), workspace.WriteOptions{CreateDirs: true}); err != nil {
		return Descriptor{}, err
	}
	if len(fm) == 0 {
		fm = nil
	}
	return Descriptor{Path: p.Rel, FrontMatter: fm, Body: body}, nil
}
