package handlers

import (
	"context"
	"os"
	"regexp"

	"agentic-edit/internal/search"
	"agentic-edit/internal/tools"
)

const maxContextLines = 10

type searchArgs struct {
	Path         string    `json:"path"`
	Regex        string    `json:"regex"`
	FilePattern  string    `json:"file_pattern,omitempty"`
	ContextLines tools.Int `json:"context_lines,omitempty"`
}

type SearchFilesHandler struct{}

func (SearchFilesHandler) Name() tools.ToolName   { return tools.SearchFiles }
func (SearchFilesHandler) SupportsParallel() bool { return true }
func (SearchFilesHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (SearchFilesHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (SearchFilesHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args searchArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	if args.Regex == "" {
		return tools.Result{}, invalidArgs("search_files: regex is required")
	}
	re, err := regexp.Compile(args.Regex)
	if err != nil {
		return tools.Result{}, invalidArgs("search_files: invalid regex: %v", err)
	}
	if args.ContextLines < 0 || args.ContextLines > maxContextLines {
		return tools.Result{}, invalidArgs("search_files: context_lines must be between 0 and %d", maxContextLines)
	}
	if args.Path == "" {
		args.Path = "."
	}
	p, err := resolvePath(inv, args.Path, false)
	if err != nil {
		return tools.Result{}, err
	}
	res, err := search.Grep(ctx, inv.Session.Workspace.Root(), p.Abs, re, search.GrepOptions{
		FilePattern:  args.FilePattern,
		ContextLines: int(args.ContextLines),
		Limit:        limitOr(inv.Session.Limits.MaxResults, search.DefaultLimit),
		Allow:        readable(inv),
	})
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.SearchMatches{
		Path:         p.Rel,
		Regex:        args.Regex,
		Matches:      res.Matches,
		FilesScanned: res.FilesScanned,
		Truncated:    res.Truncated,
	}), nil
}

type listArgs struct {
	Path      string     `json:"path"`
	Recursive tools.Bool `json:"recursive,omitempty"`
	Query     string     `json:"query,omitempty"`
}

type ListFilesHandler struct{}

func (ListFilesHandler) Name() tools.ToolName   { return tools.ListFiles }
func (ListFilesHandler) SupportsParallel() bool { return true }
func (ListFilesHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (ListFilesHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ListFilesHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args listArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	if args.Path == "" {
		args.Path = "."
	}
	p, err := resolvePath(inv, args.Path, false)
	if err != nil {
		return tools.Result{}, err
	}
	info, err := os.Stat(p.Abs)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	if !info.IsDir() {
		return tools.Result{}, invalidArgs("list_files: %s is not a directory", p.Rel)
	}
	listing, err := search.ListFiles(ctx, inv.Session.Workspace.Root(), p.Abs, search.ListOptions{
		Recursive: bool(args.Recursive),
		Query:     args.Query,
		Limit:     limitOr(inv.Session.Limits.MaxResults, search.DefaultLimit),
		Allow:     readable(inv),
	})
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.FileListing{Path: p.Rel, Entries: listing.Entries, Truncated: listing.Truncated}), nil
}

// readable filters workspace-relative paths through the session's read policy.
func readable(inv tools.Invocation) func(string) bool {
	return func(rel string) bool { return inv.Session.Policy.AllowRead(rel).Allowed }
}
