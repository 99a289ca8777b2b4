package handlers

import (
	"context"
	"errors"
	"io/fs"

	"agentic-edit/internal/logger"
	"agentic-edit/internal/patch"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

var log = logger.Named("handlers")

type writeArgs struct {
	Path       string     `json:"path"`
	Content    *string    `json:"content"`
	CreateOnly tools.Bool `json:"create_only,omitempty"`
}

// WriteToFileHandler replaces a whole file atomically.
type WriteToFileHandler struct{}

func (WriteToFileHandler) Name() tools.ToolName   { return tools.WriteToFile }
func (WriteToFileHandler) SupportsParallel() bool { return false }
func (WriteToFileHandler) IsMutating(tools.Invocation) bool {
	return true
}

func (WriteToFileHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (WriteToFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args writeArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	if args.Content == nil {
		return tools.Result{}, invalidArgs("write_to_file: content is required")
	}
	p, err := resolvePath(inv, args.Path, true)
	if err != nil {
		return tools.Result{}, err
	}
	ws := inv.Session.Workspace
	unlock := ws.Lock(p)
	defer unlock()

	before, err := previous(ws, p)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	if err := ctx.Err(); err != nil {
		return tools.Result{}, err
	}
	after := []byte(*args.Content)
	created, err := ws.WriteFileAtomic(p, after, workspace.WriteOptions{
		CreateOnly: bool(args.CreateOnly),
		CreateDirs: !inv.Session.Policy.NoCreateDirs,
	})
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.WriteOutcome{
		Path:         p.Rel,
		BytesWritten: len(after),
		Created:      created,
		Diff:         diffFor(ctx, p.Rel, before, after),
	}), nil
}

// previous returns the current content of p, or nil when it does not exist yet.
func previous(ws *workspace.Workspace, p workspace.Path) ([]byte, error) {
	data, _, err := ws.ReadFile(p, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// diffFor renders a preview of the change. The write has already been committed, so a
// failure here only drops the preview.
func diffFor(ctx context.Context, rel string, before, after []byte) string {
	diff, err := patch.UnifiedDiff(context.WithoutCancel(ctx), rel, before, after)
	if err != nil {
		log.Warnf("diff %s: %v", rel, err)
		return ""
	}
	return diff
}
