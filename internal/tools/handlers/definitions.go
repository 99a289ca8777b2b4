package handlers

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"agentic-edit/internal/cache"
	"agentic-edit/internal/search"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

const definitionsTTL = 30 * time.Minute

type definitionsArgs struct {
	Path string `json:"path"`
}

// ListCodeDefinitionsHandler lists top-level definitions of one source file, or of the
// source files directly inside a directory.
type ListCodeDefinitionsHandler struct{}

func (ListCodeDefinitionsHandler) Name() tools.ToolName   { return tools.ListCodeDefinitionNames }
func (ListCodeDefinitionsHandler) SupportsParallel() bool { return true }
func (ListCodeDefinitionsHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (ListCodeDefinitionsHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ListCodeDefinitionsHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args definitionsArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	p, err := resolvePath(inv, args.Path, false)
	if err != nil {
		return tools.Result{}, err
	}
	info, err := os.Stat(p.Abs)
	if err != nil {
		return tools.Result{}, toolError(err)
	}

	ws := inv.Session.Workspace
	out := tools.DefinitionListing{Path: p.Rel}
	if !info.IsDir() {
		if !search.Supported(p.Abs) {
			return tools.Result{}, invalidArgs("list_code_definition_names: unsupported file type %s", path.Ext(p.Rel))
		}
		defs, err := fileDefinitions(ctx, inv.Session.Cache, ws, p, info)
		if err != nil {
			return tools.Result{}, toolError(err)
		}
		out.Files = []tools.FileDefinitions{{Path: p.Rel, Definitions: defs}}
		return tools.Success(out), nil
	}

	items, err := os.ReadDir(p.Abs)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })
	limit := limitOr(inv.Session.Limits.MaxResults, search.DefaultLimit)
	for _, item := range items {
		if item.IsDir() || !search.Supported(item.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return tools.Result{}, err
		}
		child, err := ws.Resolve(filepath.Join(p.Abs, item.Name()))
		if err != nil || !inv.Session.Policy.AllowRead(child.Rel).Allowed {
			continue
		}
		childInfo, err := item.Info()
		if err != nil || !childInfo.Mode().IsRegular() {
			continue
		}
		if len(out.Files) >= limit {
			out.Truncated = true
			break
		}
		defs, err := fileDefinitions(ctx, inv.Session.Cache, ws, child, childInfo)
		if err != nil {
			continue
		}
		if len(defs) == 0 {
			continue
		}
		out.Files = append(out.Files, tools.FileDefinitions{Path: child.Rel, Definitions: defs})
	}
	return tools.Success(out), nil
}

// fileDefinitions extracts definitions, keyed in the cache by path, size and mtime so
// an edited file is parsed again.
func fileDefinitions(ctx context.Context, c *cache.Cache, ws *workspace.Workspace, p workspace.Path, info os.FileInfo) ([]search.Definition, error) {
	key := cache.Key("defs", p.Abs, fmt.Sprint(info.Size()), fmt.Sprint(info.ModTime().UnixNano()))
	if defs, ok := cache.GetJSON[[]search.Definition](ctx, c, key); ok {
		return defs, nil
	}
	data, truncated, err := ws.ReadFile(p, search.DefaultMaxFileBytes)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, nil
	}
	defs := search.ExtractDefinitions(p.Abs, data)
	if err := cache.SetJSON(ctx, c, key, defs, definitionsTTL); err != nil {
		log.Warnf("cache definitions %s: %v", p.Rel, err)
	}
	return defs, nil
}
