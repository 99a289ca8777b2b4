package tools

import (
	"context"
	"sync"
	"time"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/cache"
	"agentic-edit/internal/mcp"
	"agentic-edit/internal/policy"
	"agentic-edit/internal/rag"
	"agentic-edit/internal/sandbox"
	"agentic-edit/internal/todo"
	"agentic-edit/internal/workspace"
)

// CommandRunner 提供最小化的执行接口，由 sandbox.Runner 实现。
type CommandRunner interface {
	Run(ctx context.Context, spec sandbox.CommandSpec) (sandbox.CommandResult, error)
}

type MCPCaller interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (mcp.Response, error)
}

type RAGQuerier interface {
	Query(ctx context.Context, server, query string) (rag.Answer, error)
}

type Limits struct {
	CommandTimeout time.Duration
	MaxOutputBytes int
	MaxResults     int
	MaxReadBytes   int64
}

// Session is the execution context shared by every call of one agent session.
// Cancellation travels through the context passed to Dispatch.
type Session struct {
	ID        string
	Workspace *workspace.Workspace
	Policy    policy.Policy
	Commands  CommandRunner
	MCP       MCPCaller
	RAG       RAGQuerier
	Todos     *todo.Store
	Modules   *acmod.Store
	Cache     *cache.Cache
	Approvals *ApprovalStore
	Limits    Limits

	mu        sync.Mutex
	completed bool
}

// BeginTurn starts a new turn, clearing the completion flag.
func (s *Session) BeginTurn() {
	s.mu.Lock()
	s.completed = false
	s.mu.Unlock()
}

// Completed reports whether attempt_completion succeeded in the current turn.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func (s *Session) markCompleted() {
	s.mu.Lock()
	s.completed = true
	s.mu.Unlock()
}

// Invocation 提供 handler 执行所需的上下文。
type Invocation struct {
	Call    Call
	Session *Session
}
