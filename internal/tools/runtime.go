package tools

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"agentic-edit/internal/audit"
)

const DefaultMaxConcurrentCalls = 8

// Runtime 协调路由与并行控制。
// Parallel-safe handlers share a read lock; mutating ones take the write lock, so a
// write never overlaps any other call. A weighted semaphore bounds calls in flight.
type Runtime struct {
	registry     *Registry
	orchestrator *Orchestrator
	audit        audit.Sink
	slots        *semaphore.Weighted
	lock         sync.RWMutex
}

type RuntimeOptions struct {
	Audit audit.Sink
	// MaxConcurrentCalls bounds dispatches in flight; zero means DefaultMaxConcurrentCalls.
	MaxConcurrentCalls int
}

func NewRuntime(registry *Registry, opts RuntimeOptions) *Runtime {
	limit := opts.MaxConcurrentCalls
	if limit <= 0 {
		limit = DefaultMaxConcurrentCalls
	}
	r := &Runtime{
		registry: registry,
		audit:    opts.Audit,
		slots:    semaphore.NewWeighted(int64(limit)),
	}
	r.orchestrator = NewOrchestrator(r.admit)
	return r
}

func (r *Runtime) Registry() *Registry { return r.registry }

// Dispatch routes call to its handler and always returns a valid Result. Exactly one
// audit event is recorded per call, unknown tools included.
func (r *Runtime) Dispatch(ctx context.Context, sess *Session, call Call, emit func(ToolEvent)) Result {
	if emit == nil {
		emit = func(ToolEvent) {}
	}
	start := time.Now()
	workdir := sessionRoot(sess)
	handler, ok := r.registry.Handler(call.Name)
	logToolRequest(call, ok, workdir)

	inv := Invocation{Call: call, Session: sess}
	var (
		result   Result
		target   string
		mutating bool
	)
	switch {
	case !ok:
		result = r.reject(call, NewError(KindUnknownTool, "unknown tool %q", call.Name), emit)
	case sess == nil:
		result = r.reject(call, NewError(KindInternalError, "no session"), emit)
	case sess.Completed():
		result = r.reject(call, NewError(KindPermissionDenied, "turn already completed by attempt_completion"), emit)
	default:
		target = handler.Describe(inv)
		mutating = handler.IsMutating(inv)
		result = r.run(ctx, inv, handler, emit)
		if call.Name == AttemptCompletion && result.Status == StatusSuccess {
			sess.markCompleted()
		}
	}

	elapsed := time.Since(start)
	r.record(ctx, call, result, target, mutating, elapsed)
	logToolResult(call, result, workdir, elapsed)
	return result
}

func (r *Runtime) run(ctx context.Context, inv Invocation, handler Handler, emit func(ToolEvent)) Result {
	return r.orchestrator.Run(ctx, inv, handler, emit)
}

// admit takes a slot and the runtime lock once the call has cleared approval.
func (r *Runtime) admit(ctx context.Context, inv Invocation, handler Handler) (func(), error) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if handler.SupportsParallel() && !handler.IsMutating(inv) {
		r.lock.RLock()
		return func() {
			r.lock.RUnlock()
			r.slots.Release(1)
		}, nil
	}
	r.lock.Lock()
	return func() {
		r.lock.Unlock()
		r.slots.Release(1)
	}, nil
}

// reject completes a call that never reached its handler.
func (r *Runtime) reject(call Call, err *ToolError, emit func(ToolEvent)) Result {
	result := Failure(err)
	result.CallID = call.ID
	result.Tool = call.Name
	emit(ToolEvent{Type: EventItemCompleted, CallID: call.ID, Tool: call.Name, Result: &result})
	return result
}

func (r *Runtime) record(ctx context.Context, call Call, result Result, target string, mutating bool, elapsed time.Duration) {
	if r.audit == nil {
		return
	}
	evt := audit.Stamp(audit.Event{
		CallID:     call.ID,
		Tool:       string(call.Name),
		Target:     target,
		ArgsDigest: audit.Digest(call.Arguments),
		Mutating:   mutating,
		Outcome:    string(result.Status),
		DurationMs: elapsed.Milliseconds(),
	})
	if result.Error != nil {
		evt.ErrorKind = string(result.Error.Kind)
		evt.Message = result.Error.Message
	}
	// 审计不应被调用方的取消打断。
	if err := r.audit.Record(context.WithoutCancel(ctx), evt); err != nil {
		toolsLogger().Warnf("audit record failed for %s: %v", call.ID, err)
	}
}

func sessionRoot(sess *Session) string {
	if sess == nil || sess.Workspace == nil {
		return "."
	}
	return sess.Workspace.Root()
}
