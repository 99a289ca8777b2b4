package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentic-edit/internal/acmod"
	"agentic-edit/internal/mcp"
	"agentic-edit/internal/patch"
	"agentic-edit/internal/policy"
	"agentic-edit/internal/rag"
	"agentic-edit/internal/sandbox"
	"agentic-edit/internal/todo"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/workspace"
)

type harness struct {
	t    *testing.T
	root string
	sess *tools.Session
	rt   *tools.Runtime
}

func newHarness(t *testing.T, pol policy.Policy) *harness {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sess := &tools.Session{
		ID:        "test",
		Workspace: ws,
		Policy:    pol,
		Commands:  sandbox.NewRunner(policy.SandboxFullAccess, nil, ws.Root()),
		Todos:     todo.NewStore(ws, ""),
		Modules:   acmod.NewStore(ws),
		Limits:    tools.Limits{CommandTimeout: 10 * time.Second, MaxOutputBytes: 4096},
	}
	return &harness{t: t, root: ws.Root(), sess: sess, rt: tools.NewRuntime(reg, tools.RuntimeOptions{})}
}

func (h *harness) call(name tools.ToolName, args map[string]any) tools.Result {
	h.t.Helper()
	return h.rt.Dispatch(context.Background(), h.sess, tools.NewCall("", name, args), nil)
}

func (h *harness) write(rel, content string) {
	h.t.Helper()
	abs := filepath.Join(h.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		h.t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		h.t.Fatalf("write %s: %v", rel, err)
	}
}

func (h *harness) read(rel string) string {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, rel))
	if err != nil {
		h.t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func expectKind(t *testing.T, res tools.Result, kind tools.ErrorKind) {
	t.Helper()
	if res.Status != tools.StatusFailure || res.Error == nil || res.Error.Kind != kind {
		t.Fatalf("expected %s failure, got %+v (error %+v)", kind, res, res.Error)
	}
}

func expectSuccess[T tools.Payload](t *testing.T, res tools.Result) T {
	t.Helper()
	if res.Status != tools.StatusSuccess {
		t.Fatalf("expected success, got %+v (error %+v)", res, res.Error)
	}
	payload, ok := res.Payload.(T)
	if !ok {
		t.Fatalf("unexpected payload %T", res.Payload)
	}
	return payload
}

func TestDefaultCoversEveryTool(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, name := range tools.AllToolNames {
		if _, ok := reg.Handler(name); !ok {
			t.Fatalf("no handler for %s", name)
		}
	}
	if len(reg.Names()) != len(tools.AllToolNames) {
		t.Fatalf("registry has %d handlers, want %d", len(reg.Names()), len(tools.AllToolNames))
	}
}

func TestWriteThenRead(t *testing.T) {
	h := newHarness(t, policy.Default())
	w := expectSuccess[tools.WriteOutcome](t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "hello"}))
	if w.BytesWritten != 5 || !w.Created {
		t.Fatalf("outcome = %+v", w)
	}
	r := expectSuccess[tools.FileContent](t, h.call(tools.ReadFile, map[string]any{"path": "a.txt"}))
	if r.Content != "hello" {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestWriteCreatesParentsUnlessForbidden(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectSuccess[tools.WriteOutcome](t, h.call(tools.WriteToFile, map[string]any{"path": "deep/dir/a.txt", "content": "x"}))
	if h.read("deep/dir/a.txt") != "x" {
		t.Fatalf("file not written")
	}

	pol := policy.Default()
	pol.NoCreateDirs = true
	h = newHarness(t, pol)
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "deep/a.txt", "content": "x"}), tools.KindPermissionDenied)
}

func TestWriteCreateOnlyAndDiff(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("a.txt", "one\ntwo\n")
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "x", "create_only": true}), tools.KindPermissionDenied)
	if h.read("a.txt") != "one\ntwo\n" {
		t.Fatalf("create_only must not touch an existing file")
	}
	w := expectSuccess[tools.WriteOutcome](t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "one\nthree\n"}))
	if w.Created {
		t.Fatalf("overwrite reported as created")
	}
	if !strings.Contains(w.Diff, "-two") || !strings.Contains(w.Diff, "+three") {
		t.Fatalf("diff = %q", w.Diff)
	}
}

func TestWriteRejectsBadArgumentsWithoutSideEffects(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt"}), tools.KindInvalidArguments)
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "x", "mode": "0600"}), tools.KindInvalidArguments)
	if _, err := os.Stat(filepath.Join(h.root, "a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file must not exist, stat err = %v", err)
	}
}

func TestReplaceThenRead(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectSuccess[tools.WriteOutcome](t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "hello"}))
	p := expectSuccess[tools.PatchOutcome](t, h.call(tools.ReplaceInFile, map[string]any{
		"path":   "a.txt",
		"blocks": []any{map[string]any{"search": "hello", "replace": "world"}},
	}))
	if p.BlocksApplied != 1 {
		t.Fatalf("outcome = %+v", p)
	}
	r := expectSuccess[tools.FileContent](t, h.call(tools.ReadFile, map[string]any{"path": "a.txt"}))
	if r.Content != "world" {
		t.Fatalf("content = %q", r.Content)
	}
}

func TestReplaceWithDiffMarkers(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("main.go", "package main\n\nfunc a() {}\n")
	diff := "<<<<<<< SEARCH\nfunc a() {}\n=======\nfunc b() {}\n>>>>>>> REPLACE\n"
	expectSuccess[tools.PatchOutcome](t, h.call(tools.ReplaceInFile, map[string]any{"path": "main.go", "diff": diff}))
	if got := h.read("main.go"); got != "package main\n\nfunc b() {}\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestReplaceConflictLeavesFileUntouched(t *testing.T) {
	h := newHarness(t, policy.Default())
	original := "x = 1\ny = 2\nx = 1\n"
	h.write("a.txt", original)

	res := h.call(tools.ReplaceInFile, map[string]any{
		"path": "a.txt",
		"blocks": []any{
			map[string]any{"search": "y = 2", "replace": "y = 3"},
			map[string]any{"search": "x = 1", "replace": "x = 9"},
		},
	})
	expectKind(t, res, tools.KindPatchConflict)
	conflict, ok := res.Error.Detail.(patch.Conflict)
	if !ok {
		t.Fatalf("detail = %#v", res.Error.Detail)
	}
	if conflict.Block != 1 || conflict.Reason != patch.ReasonAmbiguous || fmt.Sprint(conflict.Lines) != "[1 3]" {
		t.Fatalf("conflict = %+v", conflict)
	}
	if h.read("a.txt") != original {
		t.Fatalf("file changed after conflict")
	}

	res = h.call(tools.ReplaceInFile, map[string]any{
		"path":   "a.txt",
		"blocks": []any{map[string]any{"search": "z = 0", "replace": "z = 1"}},
	})
	expectKind(t, res, tools.KindPatchConflict)
	if h.read("a.txt") != original {
		t.Fatalf("file changed after conflict")
	}
}

func TestReplaceIndentationDriftConflicts(t *testing.T) {
	h := newHarness(t, policy.Default())
	original := "a := 1\n  b := 2\n"
	h.write("a.go", original)

	res := h.call(tools.ReplaceInFile, map[string]any{
		"path":   "a.go",
		"blocks": []any{map[string]any{"search": "\tb := 2\n", "replace": "b := 3\n"}},
	})
	expectKind(t, res, tools.KindPatchConflict)
	if conflict, ok := res.Error.Detail.(patch.Conflict); !ok || conflict.Reason != patch.ReasonNotFound {
		t.Fatalf("detail = %#v", res.Error.Detail)
	}
	if h.read("a.go") != original {
		t.Fatalf("file changed after conflict")
	}
}

func TestReplaceMissingFile(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectKind(t, h.call(tools.ReplaceInFile, map[string]any{
		"path":   "missing.txt",
		"blocks": []any{map[string]any{"search": "a", "replace": "b"}},
	}), tools.KindNotFound)
	expectKind(t, h.call(tools.ReplaceInFile, map[string]any{"path": "missing.txt"}), tools.KindInvalidArguments)
}

func TestReadFileErrorsAndRanges(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("dir/a.txt", "l1\nl2\nl3\nl4\n")
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": "dir"}), tools.KindIsDirectory)
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": "nope.txt"}), tools.KindNotFound)
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": ""}), tools.KindInvalidArguments)

	r := expectSuccess[tools.FileContent](t, h.call(tools.ReadFile, map[string]any{"path": "dir/a.txt", "start_line": "2", "end_line": 3}))
	if r.Content != "l2\nl3\n" || r.StartLine != 2 || r.EndLine != 3 || r.TotalLines != 4 {
		t.Fatalf("range = %+v", r)
	}
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": "dir/a.txt", "start_line": 9}), tools.KindInvalidArguments)
}

func TestPathEscapesAreDenied(t *testing.T) {
	h := newHarness(t, policy.Default())
	escape := "../../etc/passwd"
	cases := []struct {
		name tools.ToolName
		args map[string]any
	}{
		{tools.ReadFile, map[string]any{"path": escape}},
		{tools.WriteToFile, map[string]any{"path": escape, "content": "x"}},
		{tools.ReplaceInFile, map[string]any{"path": escape, "blocks": []any{map[string]any{"search": "a", "replace": "b"}}}},
		{tools.SearchFiles, map[string]any{"path": "../..", "regex": "root"}},
		{tools.ListFiles, map[string]any{"path": "../.."}},
		{tools.ListCodeDefinitionNames, map[string]any{"path": "../.."}},
		{tools.ACModRead, map[string]any{"path": "../.."}},
		{tools.ACModWrite, map[string]any{"path": "../..", "content": "x"}},
	}
	for _, tc := range cases {
		expectKind(t, h.call(tc.name, tc.args), tools.KindPermissionDenied)
	}
}

func TestSymlinkEscapeIsDenied(t *testing.T) {
	h := newHarness(t, policy.Default())
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret"), []byte("s"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(h.root, "link")); err != nil {
		t.Skipf("symlink: %v", err)
	}
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": "link/secret"}), tools.KindPermissionDenied)
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "link/new", "content": "x"}), tools.KindPermissionDenied)
}

func TestPolicyPathRules(t *testing.T) {
	pol := policy.Default()
	pol.Paths.Deny = []string{".env", "secrets/**"}
	h := newHarness(t, pol)
	h.write(".env", "TOKEN=1")
	h.write("secrets/key", "k")
	h.write("ok.txt", "TOKEN=2")
	expectKind(t, h.call(tools.ReadFile, map[string]any{"path": ".env"}), tools.KindPermissionDenied)
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "secrets/new", "content": "x"}), tools.KindPermissionDenied)

	s := expectSuccess[tools.SearchMatches](t, h.call(tools.SearchFiles, map[string]any{"path": ".", "regex": "TOKEN"}))
	if len(s.Matches) != 1 || s.Matches[0].Path != "ok.txt" {
		t.Fatalf("denied files leaked into search: %+v", s.Matches)
	}

	ro := policy.Default()
	ro.SandboxMode = policy.SandboxReadOnly
	h = newHarness(t, ro)
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "a.txt", "content": "x"}), tools.KindPermissionDenied)
}

func TestDeniedPathsDoNotConsumeLimit(t *testing.T) {
	pol := policy.Default()
	pol.Paths.Deny = []string{"a-secret.txt", "b-secret.txt"}
	h := newHarness(t, pol)
	for _, rel := range []string{"a-secret.txt", "b-secret.txt", "c.txt", "d.txt"} {
		h.write(rel, "TOKEN\n")
	}
	h.sess.Limits.MaxResults = 2

	s := expectSuccess[tools.SearchMatches](t, h.call(tools.SearchFiles, map[string]any{"path": ".", "regex": "TOKEN"}))
	if len(s.Matches) != 2 || s.Matches[0].Path != "c.txt" || s.Matches[1].Path != "d.txt" || s.Truncated {
		t.Fatalf("search = %+v", s)
	}

	l := expectSuccess[tools.FileListing](t, h.call(tools.ListFiles, map[string]any{"path": "."}))
	if len(l.Entries) != 2 || l.Entries[0].Path != "c.txt" || l.Entries[1].Path != "d.txt" || l.Truncated {
		t.Fatalf("listing = %+v", l)
	}
}

func TestSearchFiles(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("b.go", "package b\n// TODO: two\n")
	h.write("a.go", "package a\n// TODO: one\n")
	h.write("notes.md", "TODO: md\n")

	s := expectSuccess[tools.SearchMatches](t, h.call(tools.SearchFiles, map[string]any{"path": ".", "regex": "TODO", "file_pattern": "*.go"}))
	if len(s.Matches) != 2 || s.Matches[0].Path != "a.go" || s.Matches[1].Path != "b.go" || s.Matches[0].Line != 2 {
		t.Fatalf("matches = %+v", s.Matches)
	}
	expectKind(t, h.call(tools.SearchFiles, map[string]any{"path": ".", "regex": "("}), tools.KindInvalidArguments)
	expectKind(t, h.call(tools.SearchFiles, map[string]any{"path": "missing", "regex": "x"}), tools.KindNotFound)

	h.sess.Limits.MaxResults = 1
	s = expectSuccess[tools.SearchMatches](t, h.call(tools.SearchFiles, map[string]any{"path": ".", "regex": "TODO"}))
	if len(s.Matches) != 1 || !s.Truncated {
		t.Fatalf("expected truncated result, got %+v", s)
	}
}

func TestListFiles(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("src/main.go", "package main\n")
	h.write("src/util.go", "package main\n")
	h.write("README.md", "readme\n")

	l := expectSuccess[tools.FileListing](t, h.call(tools.ListFiles, map[string]any{"path": ".", "recursive": "true"}))
	var paths []string
	for _, e := range l.Entries {
		paths = append(paths, e.Path)
	}
	if strings.Join(paths, ",") != "README.md,src,src/main.go,src/util.go" {
		t.Fatalf("paths = %v", paths)
	}

	l = expectSuccess[tools.FileListing](t, h.call(tools.ListFiles, map[string]any{"path": ".", "recursive": true, "query": "util"}))
	if len(l.Entries) == 0 || l.Entries[0].Path != "src/util.go" {
		t.Fatalf("ranked = %+v", l.Entries)
	}

	h.sess.Limits.MaxResults = 2
	l = expectSuccess[tools.FileListing](t, h.call(tools.ListFiles, map[string]any{"path": ".", "recursive": true}))
	if len(l.Entries) != 2 || !l.Truncated {
		t.Fatalf("expected truncation, got %+v", l)
	}
	expectKind(t, h.call(tools.ListFiles, map[string]any{"path": "README.md"}), tools.KindInvalidArguments)
}

func TestListCodeDefinitions(t *testing.T) {
	h := newHarness(t, policy.Default())
	h.write("pkg/a.go", "package pkg\n\ntype Server struct{}\n\nfunc (s *Server) Run() error { return nil }\n\nfunc helper() {}\n")
	h.write("pkg/b.py", "class Thing:\n    pass\n\ndef build():\n    pass\n")
	h.write("pkg/readme.txt", "nothing\n")

	d := expectSuccess[tools.DefinitionListing](t, h.call(tools.ListCodeDefinitionNames, map[string]any{"path": "pkg"}))
	if len(d.Files) != 2 || d.Files[0].Path != "pkg/a.go" || d.Files[1].Path != "pkg/b.py" {
		t.Fatalf("files = %+v", d.Files)
	}
	var names []string
	for _, def := range d.Files[0].Definitions {
		names = append(names, def.Name)
	}
	if strings.Join(names, ",") != "Server,Run,helper" {
		t.Fatalf("go definitions = %v", names)
	}
	expectKind(t, h.call(tools.ListCodeDefinitionNames, map[string]any{"path": "pkg/readme.txt"}), tools.KindInvalidArguments)
}

func TestExecuteCommand(t *testing.T) {
	h := newHarness(t, policy.Default())
	out := expectSuccess[tools.CommandOutput](t, h.call(tools.ExecuteCommand, map[string]any{"command": "echo out; echo err >&2; exit 3"}))
	if strings.TrimSpace(out.Stdout) != "out" || strings.TrimSpace(out.Stderr) != "err" || out.ExitCode != 3 {
		t.Fatalf("output = %+v", out)
	}
	out = expectSuccess[tools.CommandOutput](t, h.call(tools.ExecuteCommand, map[string]any{"command": "pwd"}))
	if strings.TrimSpace(out.Stdout) != h.root {
		t.Fatalf("pwd = %q, want %q", out.Stdout, h.root)
	}
	expectKind(t, h.call(tools.ExecuteCommand, map[string]any{"command": "  "}), tools.KindInvalidArguments)
}

func TestExecuteCommandTimeout(t *testing.T) {
	h := newHarness(t, policy.Default())
	start := time.Now()
	res := h.call(tools.ExecuteCommand, map[string]any{"command": "echo started; sleep 10", "timeout": 1})
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout took %s", elapsed)
	}
	expectKind(t, res, tools.KindTimeout)
	partial, ok := res.Error.Detail.(tools.CommandOutput)
	if !ok || !strings.Contains(partial.Stdout, "started") {
		t.Fatalf("partial output = %#v", res.Error.Detail)
	}
}

func TestExecuteCommandPolicy(t *testing.T) {
	pol := policy.Default()
	pol.Commands.Deny = []string{"rm *"}
	h := newHarness(t, pol)
	h.write("keep.txt", "x")
	expectKind(t, h.call(tools.ExecuteCommand, map[string]any{"command": "rm -f keep.txt"}), tools.KindPermissionDenied)
	if h.read("keep.txt") != "x" {
		t.Fatalf("denied command ran")
	}

	pol = policy.Default()
	pol.ApprovalPolicy = policy.ApprovalUntrusted
	h = newHarness(t, pol)
	expectKind(t, h.call(tools.ExecuteCommand, map[string]any{"command": "echo hi"}), tools.KindPermissionDenied)

	h.sess.Approvals = tools.NewApprovalStore()
	h.sess.Approvals.Resolve(tools.ApprovalDecision{ApprovalID: "approved-1", Approved: true})
	res := h.rt.Dispatch(context.Background(), h.sess, tools.NewCall("approved-1", tools.ExecuteCommand, map[string]any{"command": "echo hi"}), nil)
	if out := expectSuccess[tools.CommandOutput](t, res); strings.TrimSpace(out.Stdout) != "hi" {
		t.Fatalf("stdout = %q", out.Stdout)
	}
}

func TestExecuteCommandCancelled(t *testing.T) {
	h := newHarness(t, policy.Default())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	res := h.rt.Dispatch(ctx, h.sess, tools.NewCall("", tools.ExecuteCommand, map[string]any{"command": "sleep 10"}), nil)
	expectKind(t, res, tools.KindCancelled)
}

func TestInteractionTools(t *testing.T) {
	h := newHarness(t, policy.Default())
	res := h.call(tools.AskFollowupQuestion, map[string]any{"question": "Which file?", "options": `["a.go","b.go"]`})
	if res.Status != tools.StatusNeedsUserInput || res.Prompt == nil || len(res.Prompt.Options) != 2 {
		t.Fatalf("followup = %+v", res)
	}
	p := expectSuccess[tools.PlanResponse](t, h.call(tools.PlanModeRespond, map[string]any{"response": "plan"}))
	if p.Response != "plan" {
		t.Fatalf("plan = %+v", p)
	}
	c := expectSuccess[tools.Completion](t, h.call(tools.AttemptCompletion, map[string]any{"result": "done"}))
	if c.Result != "done" {
		t.Fatalf("completion = %+v", c)
	}
	expectKind(t, h.call(tools.WriteToFile, map[string]any{"path": "late.txt", "content": "x"}), tools.KindPermissionDenied)
	if _, err := os.Stat(filepath.Join(h.root, "late.txt")); err == nil {
		t.Fatalf("tool ran after completion")
	}
}

type fakeMCP struct {
	resp mcp.Response
	err  error
	args map[string]any
}

func (f *fakeMCP) CallTool(_ context.Context, server, tool string, args map[string]any) (mcp.Response, error) {
	f.args = args
	if f.err != nil {
		return mcp.Response{}, f.err
	}
	resp := f.resp
	resp.Server, resp.Tool = server, tool
	return resp, nil
}

func TestUseMCPTool(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectKind(t, h.call(tools.UseMCPTool, map[string]any{"server_name": "gh", "tool_name": "search"}), tools.KindNotFound)

	fake := &fakeMCP{resp: mcp.Response{Content: "3 results"}}
	h.sess.MCP = fake
	r := expectSuccess[tools.MCPResponse](t, h.call(tools.UseMCPTool, map[string]any{
		"server_name": "gh", "tool_name": "search", "arguments": `{"q":"retry"}`,
	}))
	if r.Content != "3 results" || r.Server != "gh" || fake.args["q"] != "retry" {
		t.Fatalf("response = %+v args = %v", r, fake.args)
	}
	expectKind(t, h.call(tools.UseMCPTool, map[string]any{"server_name": "gh", "tool_name": "search", "arguments": "[1]"}), tools.KindInvalidArguments)

	fake.err = fmt.Errorf("wrap: %w", mcp.ErrUnknownServer)
	expectKind(t, h.call(tools.UseMCPTool, map[string]any{"server_name": "x", "tool_name": "y"}), tools.KindNotFound)
	fake.err = errors.New("connection refused")
	res := h.call(tools.UseMCPTool, map[string]any{"server_name": "gh", "tool_name": "search"})
	expectKind(t, res, tools.KindIOError)
	if !res.Error.Retryable {
		t.Fatalf("transport errors should be retryable")
	}
}

type fakeRAG struct {
	err error
}

func (f fakeRAG) Query(ctx context.Context, server, query string) (rag.Answer, error) {
	if f.err != nil {
		return rag.Answer{}, f.err
	}
	if err := ctx.Err(); err != nil {
		return rag.Answer{}, err
	}
	return rag.Answer{Server: server, Query: query, Answer: "use backoff"}, nil
}

func TestUseRAGTool(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectKind(t, h.call(tools.UseRAGTool, map[string]any{"query": "q"}), tools.KindNotFound)
	h.sess.RAG = fakeRAG{}
	a := expectSuccess[tools.RAGAnswer](t, h.call(tools.UseRAGTool, map[string]any{"server_name": "docs", "query": "how to retry"}))
	if a.Answer != "use backoff" || a.Server != "docs" {
		t.Fatalf("answer = %+v", a)
	}
	expectKind(t, h.call(tools.UseRAGTool, map[string]any{"server_name": "docs"}), tools.KindInvalidArguments)
	h.sess.RAG = fakeRAG{err: &rag.HTTPError{StatusCode: 502, Body: "bad gateway"}}
	expectKind(t, h.call(tools.UseRAGTool, map[string]any{"query": "q"}), tools.KindIOError)
	h.sess.RAG = fakeRAG{err: context.DeadlineExceeded}
	expectKind(t, h.call(tools.UseRAGTool, map[string]any{"query": "q"}), tools.KindTimeout)
}

func TestTodoTools(t *testing.T) {
	h := newHarness(t, policy.Default())
	l := expectSuccess[tools.TodoList](t, h.call(tools.TodoRead, nil))
	if len(l.Items) != 0 {
		t.Fatalf("expected empty list, got %+v", l)
	}
	l = expectSuccess[tools.TodoList](t, h.call(tools.TodoWrite, map[string]any{
		"action": "create",
		"todos":  []any{map[string]any{"content": "write parser", "priority": "high"}, map[string]any{"content": "add tests"}},
	}))
	if len(l.Items) != 2 || l.Items[0].Priority != todo.PriorityHigh {
		t.Fatalf("created = %+v", l.Items)
	}
	id := l.Items[1].ID
	l = expectSuccess[tools.TodoList](t, h.call(tools.TodoWrite, map[string]any{"action": "mark_completed", "task_id": id}))
	if l.Items[1].Status != todo.StatusCompleted {
		t.Fatalf("status = %s", l.Items[1].Status)
	}
	expectKind(t, h.call(tools.TodoWrite, map[string]any{"action": "update", "task_id": "task_missing"}), tools.KindNotFound)
	expectKind(t, h.call(tools.TodoWrite, map[string]any{"action": "explode"}), tools.KindInvalidArguments)

	l = expectSuccess[tools.TodoList](t, h.call(tools.TodoWrite, map[string]any{"action": "create", "todos": "- [ ] one\n- [x] two"}))
	if len(l.Items) != 2 || l.Items[1].Content != "two" {
		t.Fatalf("markdown create = %+v", l.Items)
	}
	l = expectSuccess[tools.TodoList](t, h.call(tools.TodoRead, map[string]any{}))
	if len(l.Items) != 2 {
		t.Fatalf("read back = %+v", l.Items)
	}
}

func TestACModTools(t *testing.T) {
	h := newHarness(t, policy.Default())
	expectKind(t, h.call(tools.ACModRead, map[string]any{"path": "pkg"}), tools.KindNotFound)

	first := "---\nname: pkg\nowner: core\n---\n# pkg\n\nParses things.\n"
	d := expectSuccess[tools.ModuleDescriptor](t, h.call(tools.ACModWrite, map[string]any{"path": "pkg", "content": first}))
	if d.Path != "pkg/"+acmod.FileName || d.FrontMatter["owner"] != "core" {
		t.Fatalf("descriptor = %+v", d)
	}
	expectSuccess[tools.ModuleDescriptor](t, h.call(tools.ACModWrite, map[string]any{"path": "pkg", "content": "---\nowner: infra\n---\n", "mode": "merge"}))
	d = expectSuccess[tools.ModuleDescriptor](t, h.call(tools.ACModRead, map[string]any{"path": "pkg"}))
	if d.FrontMatter["name"] != "pkg" || d.FrontMatter["owner"] != "infra" || !strings.Contains(d.Body, "Parses things.") {
		t.Fatalf("merged = %+v", d)
	}
	expectKind(t, h.call(tools.ACModWrite, map[string]any{"path": "pkg", "content": "x", "mode": "append"}), tools.KindInvalidArguments)
	expectKind(t, h.call(tools.ACModWrite, map[string]any{"path": "pkg", "content": "---\nname: [\n"}), tools.KindInvalidArguments)
}

func TestToolErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		kind tools.ErrorKind
	}{
		{fmt.Errorf("x: %w", workspace.ErrOutsideRoot), tools.KindPermissionDenied},
		{fmt.Errorf("x: %w", workspace.ErrIsDirectory), tools.KindIsDirectory},
		{fmt.Errorf("x: %w", todo.ErrTaskNotFound), tools.KindNotFound},
		{fmt.Errorf("x: %w", acmod.ErrNotFound), tools.KindNotFound},
		{&patch.ConflictError{Conflict: patch.Conflict{Reason: patch.ReasonNotFound}}, tools.KindPatchConflict},
		{sandbox.SandboxError{Reason: "no"}, tools.KindPermissionDenied},
		{fmt.Errorf("%w after 1s", sandbox.ErrTimeout), tools.KindTimeout},
		{fmt.Errorf("%w: exec", sandbox.ErrSpawn), tools.KindIOError},
		{fmt.Errorf("command cancelled: %w", context.Canceled), tools.KindCancelled},
		{&os.PathError{Op: "open", Path: "a", Err: os.ErrNotExist}, tools.KindNotFound},
		{&os.PathError{Op: "write", Path: "a", Err: errors.New("disk full")}, tools.KindIOError},
		{errors.New("boom"), tools.KindInternalError},
	}
	for _, tc := range cases {
		if got := toolError(tc.err); got.Kind != tc.kind {
			t.Fatalf("%v: kind = %s, want %s", tc.err, got.Kind, tc.kind)
		}
	}
}
