package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentic-edit/internal/sandbox"
	"agentic-edit/internal/tools"
)

type commandArgs struct {
	Command          string            `json:"command"`
	Timeout          tools.Int         `json:"timeout,omitempty"`
	RequiresApproval tools.Bool        `json:"requires_approval,omitempty"`
	PTY              tools.Bool        `json:"pty,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}

func decodeCommand(call tools.Call) (commandArgs, error) {
	var args commandArgs
	if err := call.Decode(&args); err != nil {
		return args, err
	}
	args.Command = strings.TrimSpace(args.Command)
	if args.Command == "" {
		return args, invalidArgs("execute_command: command is required")
	}
	if args.Timeout < 0 {
		return args, invalidArgs("execute_command: timeout must not be negative")
	}
	return args, nil
}

// ExecuteCommandHandler runs a shell command in the workspace root.
type ExecuteCommandHandler struct{}

func (ExecuteCommandHandler) Name() tools.ToolName   { return tools.ExecuteCommand }
func (ExecuteCommandHandler) SupportsParallel() bool { return false }
func (ExecuteCommandHandler) IsMutating(tools.Invocation) bool {
	return true
}

func (ExecuteCommandHandler) Describe(inv tools.Invocation) string {
	cmd, _ := inv.Call.Arguments["command"].(string)
	return cmd
}

// Check applies the session's command policy before anything is spawned.
// Malformed arguments pass the gate and are rejected by Handle.
func (ExecuteCommandHandler) Check(inv tools.Invocation) (tools.Decision, error) {
	args, err := decodeCommand(inv.Call)
	if err != nil || inv.Session == nil {
		return tools.Decision{Allowed: true}, nil
	}
	d := inv.Session.Policy.AllowCommand(args.Command, bool(args.RequiresApproval))
	if d.RequiresApproval {
		return tools.Decision{Allowed: true, RequiresApproval: true, Reason: d.Reason}, nil
	}
	return tools.Decision{Allowed: d.Allowed, Reason: d.Reason}, nil
}

func (ExecuteCommandHandler) Handle(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
	args, err := decodeCommand(inv.Call)
	if err != nil {
		return tools.Result{}, err
	}
	ws, err := workspaceOf(inv)
	if err != nil {
		return tools.Result{}, err
	}
	if inv.Session.Commands == nil {
		return tools.Result{}, notConfigured("command runner")
	}
	limits := inv.Session.Limits
	timeout := limits.CommandTimeout
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}

	res, err := inv.Session.Commands.Run(ctx, sandbox.CommandSpec{
		Command:        args.Command,
		Workdir:        ws.Root(),
		Env:            envList(args.Env),
		Timeout:        timeout,
		MaxOutputBytes: limits.MaxOutputBytes,
		TTY:            bool(args.PTY),
	})
	out := tools.CommandOutput{
		Command:         args.Command,
		Stdout:          res.Stdout,
		Stderr:          res.Stderr,
		ExitCode:        res.ExitCode,
		StdoutTruncated: res.StdoutTruncated,
		StderrTruncated: res.StderrTruncated,
		DurationMs:      res.Duration.Milliseconds(),
	}
	if err != nil {
		te := toolError(err)
		if errors.Is(err, sandbox.ErrTimeout) || te.Kind == tools.KindCancelled {
			// 超时/取消时附带已捕获的部分输出。
			te = te.WithDetail(out)
		}
		return tools.Result{}, te
	}
	return tools.Success(out), nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
