package search

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxFileBytes = 2 << 20
	maxLineLength       = 500
	sniffLen            = 8000
)

type Match struct {
	Path   string   `json:"path"`
	Line   int      `json:"line"`
	Text   string   `json:"text"`
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

type GrepOptions struct {
	// FilePattern filters files by base name glob, e.g. "*.go".
	FilePattern  string
	ContextLines int
	Limit        int
	MaxFileBytes int64
	// Allow, when set, drops files it rejects before they are scanned or counted.
	Allow func(rel string) bool
}

type GrepResult struct {
	Matches      []Match
	Truncated    bool
	FilesScanned int
}

// Grep searches target (a file or directory inside root) for re. Files are scanned in
// parallel and matches are returned sorted by path then line.
func Grep(ctx context.Context, root, target string, re *regexp.Regexp, opts GrepOptions) (GrepResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	files, scanTruncated, err := candidateFiles(ctx, root, target, opts)
	if err != nil {
		return GrepResult{}, err
	}

	perFile := make([][]Match, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches, err := grepFile(f.abs, f.rel, re, opts.ContextLines, maxBytes, limit)
			if err != nil {
				return nil
			}
			perFile[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GrepResult{}, err
	}

	out := GrepResult{FilesScanned: len(files), Truncated: scanTruncated}
	for _, ms := range perFile {
		out.Matches = append(out.Matches, ms...)
		if len(out.Matches) > limit {
			out.Matches = out.Matches[:limit]
			out.Truncated = true
			break
		}
	}
	return out, nil
}

type candidate struct {
	abs string
	rel string
}

// candidateFiles reports whether the walk stopped at maxScan.
func candidateFiles(ctx context.Context, root, target string, opts GrepOptions) ([]candidate, bool, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, false, err
	}
	allowed := func(rel string) bool { return opts.Allow == nil || opts.Allow(rel) }
	rel := func(p string) (string, error) {
		r, err := filepath.Rel(root, p)
		return filepath.ToSlash(r), err
	}
	if !info.IsDir() {
		r, err := rel(target)
		if err != nil {
			return nil, false, err
		}
		if !allowed(r) {
			return nil, false, nil
		}
		return []candidate{{abs: target, rel: r}}, false, nil
	}
	ig := LoadIgnorer(root)
	var files []candidate
	truncated := false
	err = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == target {
				return err
			}
			return nil
		}
		if p == target {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := rel(p)
		if err != nil {
			return err
		}
		if ig.Skip(r, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if opts.FilePattern != "" {
			if ok, _ := path.Match(opts.FilePattern, d.Name()); !ok {
				return nil
			}
		}
		if !allowed(r) {
			return nil
		}
		if len(files) >= maxScan {
			truncated = true
			return fs.SkipAll
		}
		files = append(files, candidate{abs: p, rel: r})
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, truncated, nil
}

func grepFile(abs, rel string, re *regexp.Regexp, contextLines int, maxBytes int64, limit int) ([]Match, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxBytes {
		return nil, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), int(maxBytes)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var matches []Match
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		m := Match{Path: rel, Line: i + 1, Text: clip(line)}
		if contextLines > 0 {
			m.Before = clipAll(lines[max(0, i-contextLines):i])
			m.After = clipAll(lines[i+1 : min(len(lines), i+1+contextLines)])
		}
		matches = append(matches, m)
		// One extra match lets the caller detect truncation.
		if len(matches) > limit {
			break
		}
	}
	return matches, nil
}

func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}

func clip(s string) string {
	if len(s) <= maxLineLength {
		return s
	}
	return strings.ToValidUTF8(s[:maxLineLength], "") + "..."
}

func clipAll(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = clip(l)
	}
	return out
}
