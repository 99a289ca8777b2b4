package handlers

import (
	"strings"

	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

func workspaceOf(inv tools.Invocation) (*workspace.Workspace, error) {
	if inv.Session == nil || inv.Session.Workspace == nil {
		return nil, notConfigured("workspace")
	}
	return inv.Session.Workspace, nil
}

// resolvePath confines raw to the workspace and applies the session's path rules.
func resolvePath(inv tools.Invocation, raw string, write bool) (workspace.Path, error) {
	if strings.TrimSpace(raw) == "" {
		return workspace.Path{}, invalidArgs("%s: path is required", inv.Call.Name)
	}
	ws, err := workspaceOf(inv)
	if err != nil {
		return workspace.Path{}, err
	}
	p, err := ws.Resolve(raw)
	if err != nil {
		return workspace.Path{}, toolError(err)
	}
	decision := inv.Session.Policy.AllowRead(p.Rel)
	if write {
		decision = inv.Session.Policy.AllowWrite(p.Rel)
	}
	if !decision.Allowed {
		return workspace.Path{}, tools.NewError(tools.KindPermissionDenied, "%s: %s", p.Rel, decision.Reason)
	}
	return p, nil
}

// describePath is a best-effort path extraction for events and audit.
func describePath(inv tools.Invocation) string {
	if v, ok := inv.Call.Arguments["path"].(string); ok {
		return v
	}
	return ""
}

func limitOr(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
