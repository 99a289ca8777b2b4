package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllowCommand(t *testing.T) {
	p := Policy{
		SandboxMode:    SandboxWorkspaceWrite,
		ApprovalPolicy: ApprovalOnRequest,
		Commands:       Rules{Deny: []string{"rm", "curl *"}},
	}

	cases := []struct {
		command   string
		requested bool
		allowed   bool
		approval  bool
	}{
		{"ls -la", false, true, false},
		{"rm -rf /", false, false, false},
		{"/bin/rm x", false, false, false},
		{"curl http://example.test", false, false, false},
		{"go test ./...", true, false, true},
	}
	for _, tc := range cases {
		d := p.AllowCommand(tc.command, tc.requested)
		if d.Allowed != tc.allowed || d.RequiresApproval != tc.approval {
			t.Fatalf("AllowCommand(%q, %v) = %+v", tc.command, tc.requested, d)
		}
	}
}

func TestAllowCommandAllowList(t *testing.T) {
	p := Policy{Commands: Rules{Allow: []string{"go", "git status*"}}}
	if !p.AllowCommand("go build ./...", false).Allowed {
		t.Fatalf("expected go to be allowed")
	}
	if !p.AllowCommand("git status --short", false).Allowed {
		t.Fatalf("expected git status to be allowed")
	}
	if p.AllowCommand("git push", false).Allowed {
		t.Fatalf("expected git push to be rejected")
	}
}

func TestReadOnlyBlocksWritesAndCommands(t *testing.T) {
	p := Policy{SandboxMode: SandboxReadOnly}
	if p.AllowWrite("a.txt").Allowed {
		t.Fatalf("expected write to be blocked")
	}
	if p.AllowCommand("ls", false).Allowed {
		t.Fatalf("expected command to be blocked")
	}
	if !p.AllowRead("a.txt").Allowed {
		t.Fatalf("expected read to be allowed")
	}
}

func TestPathRules(t *testing.T) {
	p := Policy{Paths: Rules{Deny: []string{".env", "secrets/**"}}}
	for _, rel := range []string{".env", "config/.env", "secrets/key.pem", "secrets"} {
		if p.AllowRead(rel).Allowed {
			t.Fatalf("expected %q to be denied", rel)
		}
	}
	if !p.AllowRead("src/main.go").Allowed {
		t.Fatalf("expected src/main.go to be allowed")
	}

	allow := Policy{Paths: Rules{Allow: []string{"src/**"}}}
	if !allow.AllowWrite("src/a/b.go").Allowed {
		t.Fatalf("expected src subtree to be allowed")
	}
	if allow.AllowWrite("docs/readme.md").Allowed {
		t.Fatalf("expected docs to be outside allow list")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
name: strict
approval_policy: untrusted
paths:
  deny: [".git/**"]
commands:
  deny: ["sudo"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	p, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if p.Name != "strict" || p.ApprovalPolicy != ApprovalUntrusted {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if p.SandboxMode != SandboxWorkspaceWrite {
		t.Fatalf("expected default sandbox mode, got %q", p.SandboxMode)
	}
	if p.AllowRead(".git/config").Allowed {
		t.Fatalf("expected .git to be denied")
	}
}

func TestLoadFileRejectsUnknownMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("sandbox_mode: wide-open\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
