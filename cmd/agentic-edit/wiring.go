package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/audit"
	"agentic-edit/internal/cache"
	"agentic-edit/internal/config"
	"agentic-edit/internal/logger"
	"agentic-edit/internal/mcp"
	"agentic-edit/internal/policy"
	"agentic-edit/internal/rag"
	"agentic-edit/internal/sandbox"
	"agentic-edit/internal/todo"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/tools/handlers"
	"agentic-edit/internal/workspace"
)

// services 汇总一次会话需要的全部依赖。
type services struct {
	session *tools.Session
	runtime *tools.Runtime
	mcp     *mcp.Hub
	cache   *cache.Cache
	closers []io.Closer
}

func buildServices(cfg config.Config) (*services, error) {
	ws, err := workspace.New(cfg.Workdir)
	if err != nil {
		return nil, err
	}
	pol, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}

	svc := &services{}
	var sinks audit.Multi
	sinks = append(sinks, audit.NewLogSink(logger.Named("audit")))
	if cfg.Audit.Path != "" {
		fileSink, err := audit.OpenFile(cfg.Audit.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
		svc.closers = append(svc.closers, fileSink)
	}

	l1, err := cache.New(cache.DefaultMaxCost)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	svc.cache = l1

	hub, err := mcp.NewHub(mcpServers(cfg.MCPServers))
	if err != nil {
		return nil, fmt.Errorf("mcp: %w", err)
	}
	svc.mcp = hub

	registry, err := handlers.NewRegistry()
	if err != nil {
		return nil, err
	}
	limits := cfg.Limits
	svc.session = &tools.Session{
		ID:        uuid.NewString(),
		Workspace: ws,
		Policy:    pol,
		Commands:  sandbox.NewRunner(pol.SandboxMode, sandbox.NewPool(limits.MaxConcurrentCommands), ws.Root()),
		MCP:       hub,
		RAG:       ragClient(cfg.RAG, l1),
		Todos:     todo.NewStore(ws, todo.DefaultPath),
		Modules:   acmod.NewStore(ws),
		Cache:     l1,
		Approvals: tools.NewApprovalStore(),
		Limits: tools.Limits{
			CommandTimeout: time.Duration(limits.CommandTimeoutSeconds) * time.Second,
			MaxOutputBytes: limits.MaxOutputBytes,
			MaxResults:     limits.MaxResults,
			MaxReadBytes:   limits.MaxReadBytes,
		},
	}
	svc.runtime = tools.NewRuntime(registry, tools.RuntimeOptions{
		Audit:              sinks,
		MaxConcurrentCalls: limits.MaxConcurrentCalls,
	})
	return svc, nil
}

// loadPolicy reads the policy profile when one is configured and otherwise builds the
// policy from the config's sandbox and approval settings.
func loadPolicy(cfg config.Config) (policy.Policy, error) {
	pol := policy.Policy{}
	if cfg.PolicyFile != "" {
		loaded, err := policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			return policy.Policy{}, err
		}
		pol = loaded
	}
	if pol.SandboxMode == "" {
		pol.SandboxMode = cfg.SandboxMode
	}
	if pol.ApprovalPolicy == "" {
		pol.ApprovalPolicy = cfg.ApprovalPolicy
	}
	if err := pol.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return pol, nil
}

func mcpServers(in []config.MCPServer) []mcp.ServerDef {
	out := make([]mcp.ServerDef, 0, len(in))
	for _, s := range in {
		out = append(out, mcp.ServerDef{
			Name:      s.Name,
			Transport: s.Transport,
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			URL:       s.URL,
			Headers:   s.Headers,
		})
	}
	return out
}

func ragClient(cfg config.RAG, l1 *cache.Cache) *rag.Client {
	servers := make([]rag.ServerDef, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, rag.ServerDef{Name: s.Name, BaseURL: s.BaseURL, APIKey: s.APIKey, Model: s.Model})
	}
	return rag.New(rag.Options{
		Servers:  servers,
		Default:  rag.ServerDef{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model},
		Timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		Cache:    l1,
		CacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
	})
}

func (s *services) Close() error {
	var errs []error
	if s.mcp != nil {
		errs = append(errs, s.mcp.Close())
	}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.cache.Close()
	return errors.Join(errs...)
}
