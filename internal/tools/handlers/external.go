package handlers

import (
	"context"
	"strings"

	"agentic-edit/internal/tools"
)

type mcpArgs struct {
	ServerName string          `json:"server_name"`
	ToolName   string          `json:"tool_name"`
	Arguments  tools.JSONValue `json:"arguments,omitempty"`
}

// UseMCPToolHandler forwards a call to a configured MCP server. A tool-level error
// reported by the server is still a successful dispatch with IsError set.
type UseMCPToolHandler struct{}

func (UseMCPToolHandler) Name() tools.ToolName   { return tools.UseMCPTool }
func (UseMCPToolHandler) SupportsParallel() bool { return false }
func (UseMCPToolHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (UseMCPToolHandler) Describe(inv tools.Invocation) string {
	server, _ := inv.Call.Arguments["server_name"].(string)
	tool, _ := inv.Call.Arguments["tool_name"].(string)
	return server + "/" + tool
}

func (UseMCPToolHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args mcpArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	args.ServerName = strings.TrimSpace(args.ServerName)
	args.ToolName = strings.TrimSpace(args.ToolName)
	if args.ServerName == "" || args.ToolName == "" {
		return tools.Result{}, invalidArgs("use_mcp_tool: server_name and tool_name are required")
	}
	callArgs, err := args.Arguments.Object()
	if err != nil {
		return tools.Result{}, invalidArgs("use_mcp_tool: arguments: %v", err)
	}
	if inv.Session.MCP == nil {
		return tools.Result{}, tools.NewError(tools.KindNotFound, "no mcp servers configured (requested %q)", args.ServerName)
	}
	resp, err := inv.Session.MCP.CallTool(ctx, args.ServerName, args.ToolName, callArgs)
	if err != nil {
		return tools.Result{}, remoteError(err)
	}
	return tools.Success(tools.MCPResponse{
		Server:     resp.Server,
		Tool:       resp.Tool,
		Content:    resp.Content,
		IsError:    resp.IsError,
		Structured: resp.Structured,
	}), nil
}

type ragArgs struct {
	ServerName string `json:"server_name,omitempty"`
	Query      string `json:"query"`
}

type UseRAGToolHandler struct{}

func (UseRAGToolHandler) Name() tools.ToolName   { return tools.UseRAGTool }
func (UseRAGToolHandler) SupportsParallel() bool { return true }
func (UseRAGToolHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (UseRAGToolHandler) Describe(inv tools.Invocation) string {
	server, _ := inv.Call.Arguments["server_name"].(string)
	return server
}

func (UseRAGToolHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args ragArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return tools.Result{}, invalidArgs("use_rag_tool: query is required")
	}
	if inv.Session.RAG == nil {
		return tools.Result{}, tools.NewError(tools.KindNotFound, "no rag servers configured (requested %q)", args.ServerName)
	}
	ans, err := inv.Session.RAG.Query(ctx, strings.TrimSpace(args.ServerName), query)
	if err != nil {
		return tools.Result{}, remoteError(err)
	}
	return tools.Success(tools.RAGAnswer{Server: ans.Server, Query: ans.Query, Answer: ans.Answer, Cached: ans.Cached}), nil
}
