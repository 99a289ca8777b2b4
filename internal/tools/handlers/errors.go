package handlers

import (
	"errors"
	"io/fs"
	"net"
	"net/url"
	"os"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/mcp"
	"agentic-edit/internal/patch"
	"agentic-edit/internal/rag"
	"agentic-edit/internal/sandbox"
	"agentic-edit/internal/todo"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

// toolError 将各基础包的错误映射到统一的错误分类。
func toolError(err error) *tools.ToolError {
	if err == nil {
		return nil
	}
	var (
		te       *tools.ToolError
		conflict *patch.ConflictError
		httpErr  *rag.HTTPError
		pathErr  *fs.PathError
		linkErr  *os.LinkError
		sysErr   *os.SyscallError
		netErr   net.Error
		urlErr   *url.Error
	)
	switch {
	case errors.As(err, &te):
		return te
	case errors.As(err, &conflict):
		return tools.NewError(tools.KindPatchConflict, "%v", err).WithDetail(conflict.Conflict)

	case errors.Is(err, workspace.ErrEmptyPath),
		errors.Is(err, workspace.ErrNotDirectory),
		errors.Is(err, patch.ErrMalformed),
		errors.Is(err, patch.ErrEmptySearch),
		errors.Is(err, patch.ErrNoBlocks),
		errors.Is(err, todo.ErrInvalid),
		errors.Is(err, acmod.ErrInvalidMode),
		errors.Is(err, sandbox.ErrEmptyCommand):
		return tools.NewError(tools.KindInvalidArguments, "%v", err)
	case errors.Is(err, workspace.ErrOutsideRoot),
		errors.Is(err, workspace.ErrExists),
		errors.Is(err, workspace.ErrParentMissing),
		sandbox.IsSandboxDenied(err):
		return tools.NewError(tools.KindPermissionDenied, "%v", err)
	case errors.Is(err, workspace.ErrIsDirectory):
		return tools.NewError(tools.KindIsDirectory, "%v", err)
	case errors.Is(err, todo.ErrTaskNotFound),
		errors.Is(err, acmod.ErrNotFound),
		errors.Is(err, mcp.ErrUnknownServer),
		errors.Is(err, rag.ErrUnknownServer):
		return tools.NewError(tools.KindNotFound, "%v", err)
	case errors.Is(err, sandbox.ErrTimeout):
		return tools.NewError(tools.KindTimeout, "%v", err)
	case errors.Is(err, sandbox.ErrSpawn):
		return tools.NewError(tools.KindIOError, "%v", err)
	}

	if classified := tools.Classify(err); classified.Kind != tools.KindInternalError {
		return classified
	}
	switch {
	case errors.As(err, &httpErr),
		errors.As(err, &pathErr),
		errors.As(err, &linkErr),
		errors.As(err, &sysErr),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return tools.NewError(tools.KindIOError, "%v", err)
	}
	return tools.NewError(tools.KindInternalError, "%v", err)
}

// remoteError maps a failure of an external capability. Anything unrecognised is a
// transport problem rather than a fault of this process.
func remoteError(err error) *tools.ToolError {
	te := toolError(err)
	if te != nil && te.Kind == tools.KindInternalError {
		return tools.NewError(tools.KindIOError, "%s", te.Message)
	}
	return te
}

func invalidArgs(format string, args ...any) *tools.ToolError {
	return tools.NewError(tools.KindInvalidArguments, format, args...)
}

func notConfigured(what string) *tools.ToolError {
	return tools.NewError(tools.KindInternalError, "%s not configured", what)
}
