package handlers

import (
	"context"
	"strings"

	"agentic-edit/internal/patch"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

type replaceArgs struct {
	Path   string        `json:"path"`
	Blocks []patch.Block `json:"blocks,omitempty"`
	Diff   string        `json:"diff,omitempty"`
}

func (a replaceArgs) blocks() ([]patch.Block, error) {
	hasDiff := strings.TrimSpace(a.Diff) != ""
	switch {
	case len(a.Blocks) > 0 && hasDiff:
		return nil, invalidArgs("replace_in_file: pass either blocks or diff, not both")
	case len(a.Blocks) > 0:
		if err := patch.Validate(a.Blocks); err != nil {
			return nil, invalidArgs("replace_in_file: %v", err)
		}
		return a.Blocks, nil
	case hasDiff:
		blocks, err := patch.ParseBlocks(a.Diff)
		if err != nil {
			return nil, invalidArgs("replace_in_file: %v", err)
		}
		return blocks, nil
	}
	return nil, invalidArgs("replace_in_file: blocks or diff is required")
}

// ReplaceInFileHandler applies SEARCH/REPLACE blocks. The blocks are applied in memory
// and the file is replaced once, so a conflict leaves it untouched.
type ReplaceInFileHandler struct{}

func (ReplaceInFileHandler) Name() tools.ToolName   { return tools.ReplaceInFile }
func (ReplaceInFileHandler) SupportsParallel() bool { return false }
func (ReplaceInFileHandler) IsMutating(tools.Invocation) bool {
	return true
}

func (ReplaceInFileHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ReplaceInFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args replaceArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	blocks, err := args.blocks()
	if err != nil {
		return tools.Result{}, err
	}
	p, err := resolvePath(inv, args.Path, true)
	if err != nil {
		return tools.Result{}, err
	}
	ws := inv.Session.Workspace
	unlock := ws.Lock(p)
	defer unlock()

	before, _, err := ws.ReadFile(p, 0)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	patched, err := patch.Apply(string(before), blocks)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	if err := ctx.Err(); err != nil {
		return tools.Result{}, err
	}
	after := []byte(patched)
	if _, err := ws.WriteFileAtomic(p, after, workspace.WriteOptions{}); err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.PatchOutcome{
		Path:          p.Rel,
		BlocksApplied: len(blocks),
		Diff:          diffFor(ctx, p.Rel, before, after),
	}), nil
}
