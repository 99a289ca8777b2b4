package tools

import (
	"context"
	"runtime/debug"
)

// Orchestrator runs one handler: it emits lifecycle events, applies approval gating,
// recovers panics and normalizes whatever the handler returned.
type Orchestrator struct {
	admit AdmitFunc
}

// AdmitFunc reserves whatever a handler needs to run (slots, locks) and returns the
// function that gives it back. It is called after approval, so a call waiting on a
// human holds nothing.
type AdmitFunc func(ctx context.Context, inv Invocation, handler Handler) (release func(), err error)

func NewOrchestrator(admit AdmitFunc) *Orchestrator { return &Orchestrator{admit: admit} }

func (o *Orchestrator) Run(ctx context.Context, inv Invocation, handler Handler, emit func(ToolEvent)) Result {
	target := handler.Describe(inv)
	emit(ToolEvent{
		Type:   EventItemStarted,
		CallID: inv.Call.ID,
		Tool:   inv.Call.Name,
		Target: target,
	})

	result := o.run(ctx, inv, handler, target, emit)
	result.CallID = inv.Call.ID
	result.Tool = inv.Call.Name

	emit(ToolEvent{
		Type:   EventItemCompleted,
		CallID: inv.Call.ID,
		Tool:   inv.Call.Name,
		Target: target,
		Result: &result,
	})
	return result
}

func (o *Orchestrator) run(ctx context.Context, inv Invocation, handler Handler, target string, emit func(ToolEvent)) Result {
	if gate, ok := handler.(Gate); ok {
		if err := o.waitForApproval(ctx, inv, gate, target, emit); err != nil {
			return Failure(Classify(err))
		}
	}
	if o.admit != nil {
		release, err := o.admit(ctx, inv, handler)
		if err != nil {
			return Failure(Classify(err))
		}
		defer release()
	}
	if err := ctx.Err(); err != nil {
		return Failure(Classify(err))
	}
	result, err := safeHandle(ctx, handler, inv)
	return normalizeResult(result, err)
}

func safeHandle(ctx context.Context, handler Handler, inv Invocation) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			toolsLogger().Errorf("panic in %s (call %s): %v\n%s", handler.Name(), inv.Call.ID, r, debug.Stack())
			result = Result{}
			err = NewError(KindInternalError, "%s panicked: %v", handler.Name(), r)
		}
	}()
	return handler.Handle(ctx, inv)
}

func normalizeResult(result Result, err error) Result {
	if err != nil {
		return Failure(Classify(err))
	}
	if result.Status == "" {
		switch {
		case result.Error != nil:
			result.Status = StatusFailure
		case result.Prompt != nil:
			result.Status = StatusNeedsUserInput
		default:
			result.Status = StatusSuccess
		}
	}
	if verr := result.Validate(); verr != nil {
		return Failure(NewError(KindInternalError, "invalid result: %v", verr))
	}
	return result
}

func (o *Orchestrator) waitForApproval(ctx context.Context, inv Invocation, gate Gate, target string, emit func(ToolEvent)) error {
	decision, err := gate.Check(inv)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return NewError(KindPermissionDenied, "denied by policy: %s", decision.Reason)
	}
	if !decision.RequiresApproval {
		return nil
	}
	var approvals *ApprovalStore
	if inv.Session != nil {
		approvals = inv.Session.Approvals
	}
	if approvals == nil {
		return NewError(KindPermissionDenied, "approval required but no approver is configured: %s", decision.Reason)
	}

	emit(ToolEvent{
		Type:   EventApprovalRequested,
		CallID: inv.Call.ID,
		Tool:   inv.Call.Name,
		Target: target,
		Reason: decision.Reason,
	})
	approved, err := approvals.Wait(ctx, inv.Call.ID)
	if err != nil {
		return err
	}
	reason := "approved"
	if !approved {
		reason = "denied"
	}
	emit(ToolEvent{
		Type:   EventApprovalCompleted,
		CallID: inv.Call.ID,
		Tool:   inv.Call.Name,
		Target: target,
		Reason: reason,
	})
	if !approved {
		return NewError(KindPermissionDenied, "denied by user")
	}
	return nil
}
