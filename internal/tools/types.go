package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ToolName 是模型可调用的工具名称，集合封闭。
type ToolName string

const (
	ExecuteCommand          ToolName = "execute_command"
	ReadFile                ToolName = "read_file"
	WriteToFile             ToolName = "write_to_file"
	ReplaceInFile           ToolName = "replace_in_file"
	SearchFiles             ToolName = "search_files"
	ListFiles               ToolName = "list_files"
	ListCodeDefinitionNames ToolName = "list_code_definition_names"
	AskFollowupQuestion     ToolName = "ask_followup_question"
	AttemptCompletion       ToolName = "attempt_completion"
	PlanModeRespond         ToolName = "plan_mode_respond"
	UseMCPTool              ToolName = "use_mcp_tool"
	UseRAGTool              ToolName = "use_rag_tool"
	TodoRead                ToolName = "todo_read"
	TodoWrite               ToolName = "todo_write"
	ACModRead               ToolName = "ac_mod_read"
	ACModWrite              ToolName = "ac_mod_write"
)

// AllToolNames lists every tool in a stable order.
var AllToolNames = []ToolName{
	ExecuteCommand, ReadFile, WriteToFile, ReplaceInFile, SearchFiles, ListFiles,
	ListCodeDefinitionNames, AskFollowupQuestion, AttemptCompletion, PlanModeRespond,
	UseMCPTool, UseRAGTool, TodoRead, TodoWrite, ACModRead, ACModWrite,
}

// Call 是一次工具调用请求，创建后不再修改。
type Call struct {
	ID        string         `json:"id"`
	Name      ToolName       `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// NewCall builds a call, assigning a fresh id when id is empty.
func NewCall(id string, name ToolName, args map[string]any) Call {
	if id == "" {
		id = uuid.NewString()
	}
	if args == nil {
		args = map[string]any{}
	}
	return Call{ID: id, Name: name, Arguments: args}
}

// Status 描述调用结果的三种形态。
type Status string

const (
	StatusSuccess        Status = "success"
	StatusFailure        Status = "failure"
	StatusNeedsUserInput Status = "needs_user_input"
)

// Prompt is the question handed back to the user by ask_followup_question.
type Prompt struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// Result is the outcome of one dispatch. Exactly one of Payload, Error and Prompt is
// set, matching Status.
type Result struct {
	CallID  string
	Tool    ToolName
	Status  Status
	Payload Payload
	Error   *ToolError
	Prompt  *Prompt
}

func Success(p Payload) Result { return Result{Status: StatusSuccess, Payload: p} }

func Failure(err *ToolError) Result { return Result{Status: StatusFailure, Error: err} }

func NeedsInput(p Prompt) Result { return Result{Status: StatusNeedsUserInput, Prompt: &p} }

// Validate checks that the populated fields agree with Status.
func (r Result) Validate() error {
	switch r.Status {
	case StatusSuccess:
		if r.Payload == nil || r.Error != nil || r.Prompt != nil {
			return fmt.Errorf("success result must carry only a payload")
		}
	case StatusFailure:
		if r.Error == nil || r.Payload != nil || r.Prompt != nil {
			return fmt.Errorf("failure result must carry only an error")
		}
	case StatusNeedsUserInput:
		if r.Prompt == nil || r.Payload != nil || r.Error != nil {
			return fmt.Errorf("needs_user_input result must carry only a prompt")
		}
	default:
		return fmt.Errorf("unknown status %q", r.Status)
	}
	return nil
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		CallID  string          `json:"call_id"`
		Tool    ToolName        `json:"tool"`
		Status  Status          `json:"status"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Error   *ToolError      `json:"error,omitempty"`
		Prompt  *Prompt         `json:"prompt,omitempty"`
	}{CallID: r.CallID, Tool: r.Tool, Status: r.Status, Error: r.Error, Prompt: r.Prompt}
	if r.Payload != nil {
		raw, err := marshalPayload(r.Payload)
		if err != nil {
			return nil, err
		}
		out.Payload = raw
	}
	return json.Marshal(out)
}

// ToolEvent 是工具调用过程中发布到事件总线的事件。
type ToolEvent struct {
	Type   string   `json:"type"` // item.started|approval.requested|approval.completed|item.completed
	CallID string   `json:"call_id"`
	Tool   ToolName `json:"tool"`
	Target string   `json:"target,omitempty"`
	Reason string   `json:"reason,omitempty"`
	Result *Result  `json:"result,omitempty"`
}

const (
	EventItemStarted       = "item.started"
	EventApprovalRequested = "approval.requested"
	EventApprovalCompleted = "approval.completed"
	EventItemCompleted     = "item.completed"
)

// DispatchRequest is an in-memory bus payload that carries a call plus the context
// for cancellation and deadlines.
type DispatchRequest struct {
	Ctx  context.Context
	Call Call
}

// LogPayload leaves the context out of event traces.
func (r DispatchRequest) LogPayload() any { return r.Call }
