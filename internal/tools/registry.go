package tools

import (
	"context"
	"fmt"
	"sort"
)

// Handler 定义具体工具的执行入口。
// Handle returns a success or needs-input Result, or an error which the Orchestrator
// turns into a failure; *ToolError values keep their kind.
type Handler interface {
	Name() ToolName
	SupportsParallel() bool
	IsMutating(inv Invocation) bool
	// Describe summarizes the target of the call (a path, a command) for events and audit.
	Describe(inv Invocation) string
	Handle(ctx context.Context, inv Invocation) (Result, error)
}

// Gate is implemented by handlers that must pass a policy decision before running.
type Gate interface {
	Check(inv Invocation) (Decision, error)
}

type Decision struct {
	Allowed          bool
	RequiresApproval bool
	Reason           string
}

type Registry struct {
	handlers map[ToolName]Handler
}

// NewRegistry builds an immutable registry. Nil handlers and duplicate names are errors.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	table := make(map[ToolName]Handler, len(handlers))
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("handler %d is nil", i)
		}
		if _, dup := table[h.Name()]; dup {
			return nil, fmt.Errorf("duplicate handler %q", h.Name())
		}
		table[h.Name()] = h
	}
	return &Registry{handlers: table}, nil
}

func (r *Registry) Handler(name ToolName) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) Names() []ToolName {
	names := make([]ToolName, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
