package handlers

import (
	"context"
	"strings"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/todo"
	"agentic-edit/internal/tools"
)

type TodoReadHandler struct{}

func (TodoReadHandler) Name() tools.ToolName   { return tools.TodoRead }
func (TodoReadHandler) SupportsParallel() bool { return true }
func (TodoReadHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (TodoReadHandler) Describe(tools.Invocation) string { return "" }

func (TodoReadHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args struct{}
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	if inv.Session.Todos == nil {
		return tools.Result{}, notConfigured("todo store")
	}
	list, err := inv.Session.Todos.Read(ctx)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.TodoList{Items: list.Items}), nil
}

type todoWriteArgs struct {
	Action   string          `json:"action"`
	TaskID   string          `json:"task_id,omitempty"`
	Content  string          `json:"content,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Status   string          `json:"status,omitempty"`
	Notes    string          `json:"notes,omitempty"`
	Todos    tools.JSONValue `json:"todos,omitempty"`
}

func (a todoWriteArgs) op() (todo.Op, error) {
	op := todo.Op{
		Action:   todo.Action(strings.TrimSpace(a.Action)),
		TaskID:   strings.TrimSpace(a.TaskID),
		Content:  a.Content,
		Priority: todo.Priority(a.Priority),
		Status:   todo.Status(a.Status),
		Notes:    a.Notes,
	}
	if op.Action == "" {
		return op, invalidArgs("todo_write: action is required")
	}
	switch v := a.Todos.Value.(type) {
	case nil:
	case string:
		for _, line := range todo.ParseTaskLines(v) {
			op.Todos = append(op.Todos, todo.Draft{Content: line})
		}
	default:
		if err := a.Todos.DecodeInto(&op.Todos); err != nil {
			return op, invalidArgs("todo_write: todos: %v", err)
		}
	}
	return op, nil
}

// TodoWriteHandler replaces (create) or merges into the session task list.
type TodoWriteHandler struct{}

func (TodoWriteHandler) Name() tools.ToolName   { return tools.TodoWrite }
func (TodoWriteHandler) SupportsParallel() bool { return false }
func (TodoWriteHandler) IsMutating(tools.Invocation) bool {
	return true
}

func (TodoWriteHandler) Describe(inv tools.Invocation) string {
	action, _ := inv.Call.Arguments["action"].(string)
	return action
}

func (TodoWriteHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args todoWriteArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	op, err := args.op()
	if err != nil {
		return tools.Result{}, err
	}
	if inv.Session.Todos == nil {
		return tools.Result{}, notConfigured("todo store")
	}
	list, err := inv.Session.Todos.Apply(ctx, op)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.TodoList{Items: list.Items}), nil
}

type acModArgs struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// checkModule applies the path rules to the descriptor file of a module.
func checkModule(inv tools.Invocation, modulePath string, write bool) error {
	if inv.Session.Modules == nil {
		return notConfigured("module store")
	}
	p, err := inv.Session.Modules.Locate(modulePath)
	if err != nil {
		return toolError(err)
	}
	_, err = resolvePath(inv, p.Rel, write)
	return err
}

type ACModReadHandler struct{}

func (ACModReadHandler) Name() tools.ToolName   { return tools.ACModRead }
func (ACModReadHandler) SupportsParallel() bool { return true }
func (ACModReadHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (ACModReadHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ACModReadHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	if err := checkModule(inv, args.Path, false); err != nil {
		return tools.Result{}, err
	}
	desc, err := inv.Session.Modules.Read(ctx, args.Path)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.ModuleDescriptor{Descriptor: desc}), nil
}

type ACModWriteHandler struct{}

func (ACModWriteHandler) Name() tools.ToolName   { return tools.ACModWrite }
func (ACModWriteHandler) SupportsParallel() bool { return false }
func (ACModWriteHandler) IsMutating(tools.Invocation) bool {
	return true
}

func (ACModWriteHandler) Describe(inv tools.Invocation) string { return describePath(inv) }

func (ACModWriteHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	var args acModArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	switch args.Mode {
	case "", acmod.ModeReplace, acmod.ModeMerge:
	default:
		return tools.Result{}, invalidArgs("ac_mod_write: mode must be %q or %q", acmod.ModeReplace, acmod.ModeMerge)
	}
	if _, _, err := acmod.Parse(args.Content); err != nil {
		return tools.Result{}, invalidArgs("ac_mod_write: %v", err)
	}
	if err := checkModule(inv, args.Path, true); err != nil {
		return tools.Result{}, err
	}
	desc, err := inv.Session.Modules.Write(ctx, args.Path, args.Content, args.Mode)
	if err != nil {
		return tools.Result{}, toolError(err)
	}
	return tools.Success(tools.ModuleDescriptor{Descriptor: desc}), nil
}
