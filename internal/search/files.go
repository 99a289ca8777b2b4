package search

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sahilm/fuzzy"
)

const DefaultLimit = 200

// maxScan stops a walk on pathological trees before sorting.
var maxScan = 100000

type Entry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir,omitempty"`
	Size  int64  `json:"size,omitempty"`
	Score int    `json:"score,omitempty"`
}

type ListOptions struct {
	Recursive bool
	// Query ranks entries by fuzzy match instead of listing them lexicographically.
	Query string
	Limit int
	// Allow, when set, drops entries it rejects before they count toward any cap.
	Allow func(rel string) bool
}

type Listing struct {
	Entries   []Entry
	Truncated bool
}

// ListFiles lists dir (an absolute path inside root). Paths are slash separated and
// relative to root. Results are sorted by path, or by fuzzy score with ties broken by path.
func ListFiles(ctx context.Context, root, dir string, opts ListOptions) (Listing, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	ig := LoadIgnorer(root)
	var entries []Entry
	scanTruncated := false

	add := func(abs string, d fs.DirEntry) error {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return err
		}
		e := Entry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
		if opts.Allow != nil && !opts.Allow(e.Path) {
			return nil
		}
		if !e.IsDir {
			if info, err := d.Info(); err == nil {
				e.Size = info.Size()
			}
		}
		entries = append(entries, e)
		return nil
	}

	if !opts.Recursive {
		items, err := os.ReadDir(dir)
		if err != nil {
			return Listing{}, err
		}
		for _, d := range items {
			rel, _ := filepath.Rel(root, filepath.Join(dir, d.Name()))
			if ig.Skip(filepath.ToSlash(rel), d.IsDir()) {
				continue
			}
			if err := add(filepath.Join(dir, d.Name()), d); err != nil {
				return Listing{}, err
			}
		}
	} else {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if p == dir {
					return err
				}
				return nil
			}
			if p == dir {
				return nil
			}
			if len(entries)%512 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			if ig.Skip(filepath.ToSlash(rel), d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if len(entries) >= maxScan {
				scanTruncated = true
				return fs.SkipAll
			}
			return add(p, d)
		})
		if err != nil {
			return Listing{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	if opts.Query != "" {
		entries = rank(opts.Query, entries)
	}
	out := Listing{Entries: entries, Truncated: scanTruncated}
	if len(out.Entries) > limit {
		out.Entries = out.Entries[:limit]
		out.Truncated = true
	}
	return out, nil
}

// rank keeps the entries matching query, best score first, ties by path.
func rank(query string, entries []Entry) []Entry {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	matches := fuzzy.Find(query, paths)
	ranked := make([]Entry, 0, len(matches))
	for _, m := range matches {
		e := entries[m.Index]
		e.Score = m.Score
		ranked = append(ranked, e)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Path < ranked[j].Path
	})
	return ranked
}
