package search

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

var defaultIgnoreDirs = []string{
	".git", ".hg", ".svn", "node_modules", ".idea", ".vscode", "target", "vendor",
	"dist", "build", "__pycache__", ".venv", ".mypy_cache", ".pytest_cache", ".next",
}

// Ignorer decides which workspace entries are skipped by listing and search.
// It understands the simple subset of .gitignore used in practice: plain names,
// trailing-slash directory patterns, rooted patterns and shell globs.
type Ignorer struct {
	dirs  []string
	files []string
}

// LoadIgnorer builds an Ignorer from the default skip list and root/.gitignore.
func LoadIgnorer(root string) *Ignorer {
	ig := &Ignorer{dirs: append([]string{}, defaultIgnoreDirs...)}
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return ig
	}
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		s := strings.TrimSpace(raw)
		if s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "!") {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		isDir := strings.HasSuffix(s, "/")
		s = strings.TrimSuffix(strings.TrimPrefix(s, "/"), "/")
		if s == "" {
			continue
		}
		if isDir {
			ig.dirs = append(ig.dirs, s)
		} else {
			ig.files = append(ig.files, s)
		}
	}
	return ig
}

// Skip reports whether rel (slash separated, relative to the root) is ignored.
func (ig *Ignorer) Skip(rel string, isDir bool) bool {
	if ig == nil || rel == "" || rel == "." {
		return false
	}
	base := path.Base(rel)
	if isDir {
		for _, p := range ig.dirs {
			if matchPattern(p, rel, base) {
				return true
			}
		}
	}
	for _, p := range ig.files {
		if matchPattern(p, rel, base) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, rel, base string) bool {
	if strings.Contains(pattern, "/") {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		return rel == pattern || strings.HasPrefix(rel, pattern+"/")
	}
	ok, _ := path.Match(pattern, base)
	return ok
}
