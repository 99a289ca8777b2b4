package tools

import (
	"encoding/json"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/search"
	"agentic-edit/internal/todo"
)

// Payload is the success data of a Result. The set of payloads is closed; each one
// is encoded with a "type" discriminator.
type Payload interface {
	payloadType() string
}

type CommandOutput struct {
	Command         string `json:"command"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
}

type FileContent struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	StartLine  int    `json:"start_line,omitempty"`
	EndLine    int    `json:"end_line,omitempty"`
	TotalLines int    `json:"total_lines"`
	Truncated  bool   `json:"truncated,omitempty"`
}

type WriteOutcome struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Created      bool   `json:"created"`
	Diff         string `json:"diff,omitempty"`
}

type PatchOutcome struct {
	Path          string `json:"path"`
	BlocksApplied int    `json:"blocks_applied"`
	Diff          string `json:"diff,omitempty"`
}

type SearchMatches struct {
	Path         string         `json:"path"`
	Regex        string         `json:"regex"`
	Matches      []search.Match `json:"matches"`
	FilesScanned int            `json:"files_scanned"`
	Truncated    bool           `json:"truncated,omitempty"`
}

type FileListing struct {
	Path      string         `json:"path"`
	Entries   []search.Entry `json:"entries"`
	Truncated bool           `json:"truncated,omitempty"`
}

type FileDefinitions struct {
	Path        string              `json:"path"`
	Definitions []search.Definition `json:"definitions"`
}

type DefinitionListing struct {
	Path      string            `json:"path"`
	Files     []FileDefinitions `json:"files"`
	Truncated bool              `json:"truncated,omitempty"`
}

type Completion struct {
	Result  string `json:"result"`
	Command string `json:"command,omitempty"`
}

type PlanResponse struct {
	Response string   `json:"response"`
	Options  []string `json:"options,omitempty"`
}

type MCPResponse struct {
	Server     string `json:"server"`
	Tool       string `json:"tool"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
	Structured any    `json:"structured,omitempty"`
}

type RAGAnswer struct {
	Server string `json:"server"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
	Cached bool   `json:"cached,omitempty"`
}

type TodoList struct {
	Items []todo.Item `json:"items"`
}

type ModuleDescriptor struct {
	acmod.Descriptor
}

func (CommandOutput) payloadType() string     { return "command_output" }
func (FileContent) payloadType() string       { return "file_content" }
func (WriteOutcome) payloadType() string      { return "write_outcome" }
func (PatchOutcome) payloadType() string      { return "patch_outcome" }
func (SearchMatches) payloadType() string     { return "search_matches" }
func (FileListing) payloadType() string       { return "file_listing" }
func (DefinitionListing) payloadType() string { return "definition_listing" }
func (Completion) payloadType() string        { return "completion" }
func (PlanResponse) payloadType() string      { return "plan_response" }
func (MCPResponse) payloadType() string       { return "mcp_response" }
func (RAGAnswer) payloadType() string         { return "rag_answer" }
func (TodoList) payloadType() string          { return "todo_list" }
func (ModuleDescriptor) payloadType() string  { return "module_descriptor" }

// PayloadType returns the discriminator written for p.
func PayloadType(p Payload) string {
	if p == nil {
		return ""
	}
	return p.payloadType()
}

// marshalPayload encodes p as a JSON object with its "type" field first.
func marshalPayload(p Payload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	head, err := json.Marshal(map[string]string{"type": p.payloadType()})
	if err != nil {
		return nil, err
	}
	if string(body) == "{}" {
		return head, nil
	}
	// {"type":"x"} + , + rest of body without its opening brace
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}
