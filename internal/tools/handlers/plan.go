package handlers

import (
	"context"
	"strings"

	"agentic-edit/internal/tools"
)

type followupArgs struct {
	Question string        `json:"question"`
	Options  tools.Strings `json:"options,omitempty"`
}

// AskFollowupHandler hands a question back to the user and pauses the turn.
type AskFollowupHandler struct{}

func (AskFollowupHandler) Name() tools.ToolName   { return tools.AskFollowupQuestion }
func (AskFollowupHandler) SupportsParallel() bool { return true }
func (AskFollowupHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (AskFollowupHandler) Describe(tools.Invocation) string { return "" }

func (AskFollowupHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	var args followupArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return tools.Result{}, invalidArgs("ask_followup_question: question is required")
	}
	return tools.NeedsInput(tools.Prompt{Question: question, Options: args.Options}), nil
}

type completionArgs struct {
	Result  string `json:"result"`
	Command string `json:"command,omitempty"`
}

// AttemptCompletionHandler 结束当前回合；之后的调用会被拒绝。
type AttemptCompletionHandler struct{}

func (AttemptCompletionHandler) Name() tools.ToolName   { return tools.AttemptCompletion }
func (AttemptCompletionHandler) SupportsParallel() bool { return false }
func (AttemptCompletionHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (AttemptCompletionHandler) Describe(tools.Invocation) string { return "" }

func (AttemptCompletionHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	var args completionArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	result := strings.TrimSpace(args.Result)
	if result == "" {
		return tools.Result{}, invalidArgs("attempt_completion: result is required")
	}
	return tools.Success(tools.Completion{Result: result, Command: strings.TrimSpace(args.Command)}), nil
}

type planArgs struct {
	Response string        `json:"response"`
	Options  tools.Strings `json:"options,omitempty"`
}

type PlanModeRespondHandler struct{}

func (PlanModeRespondHandler) Name() tools.ToolName   { return tools.PlanModeRespond }
func (PlanModeRespondHandler) SupportsParallel() bool { return true }
func (PlanModeRespondHandler) IsMutating(tools.Invocation) bool {
	return false
}

func (PlanModeRespondHandler) Describe(tools.Invocation) string { return "" }

func (PlanModeRespondHandler) Handle(_ context.Context, inv tools.Invocation) (tools.Result, error) {
	var args planArgs
	if err := inv.Call.Decode(&args); err != nil {
		return tools.Result{}, err
	}
	response := strings.TrimSpace(args.Response)
	if response == "" {
		return tools.Result{}, invalidArgs("plan_mode_respond: response is required")
	}
	return tools.Success(tools.PlanResponse{Response: response, Options: args.Options}), nil
}
