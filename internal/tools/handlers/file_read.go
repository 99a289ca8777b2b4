package handlers

import (
	"context"
	"strings"

	"agentic-edit/internal/tools"
)

type readFileArgs struct {
	Path      string    `json:"path"`
	StartLine tools.Int `json:"start_line,omitempty"`
	EndLine   tools.Int `json:"end_line,omitempty"`
}

type ReadFileHandler struct{}

func (ReadFileHandler) Name() tools.ToolName   { return tools.ReadFile }
func (ReadFileHandler) SupportsParallel() bool { return true }
func (ReadFileHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (ReadFileHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ReadFileHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args readFileArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	start, end := int(args.StartLine), int(args.EndLine)
	if start < 0 || end < 0 || (end > 0 && start > end) {
		return tools.Result{}, invalidArgs("read_file: invalid line range %d-%d", start, end)
	}
	p, err := resolvePath(inv, args.Path, false)
	if err != nil {
		return tools.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return tools.Result{}, err
	}
	data, truncated, err := inv.Session.Workspace.ReadFile(p, inv.Session.Limits.MaxReadBytes)
	if err != nil {
		return tools.Result{}, toolError(err)
	}

	text := string(data)
	lines := splitKeepNewline(text)
	out := tools.FileContent{Path: p.Rel, Content: text, TotalLines: len(lines), Truncated: truncated}
	if start == 0 && end == 0 {
		return tools.Success(out), nil
	}
	if start == 0 {
		start = 1
	}
	if end == 0 || end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return tools.Result{}, invalidArgs("read_file: start_line %d is past the end of %s (%d lines)", start, p.Rel, len(lines))
	}
	out.Content = strings.Join(lines[start-1:end], "")
	out.StartLine, out.EndLine = start, end
	return tools.Success(out), nil
}

// splitKeepNewline splits text into lines, each keeping its trailing newline.
func splitKeepNewline(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
