// Package policy decides whether a tool call may touch a path or spawn a command.
// A Policy is built once per session and is read-only afterwards, so it is safe
// to share between concurrently running read-only resolvers.
package policy

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	SandboxReadOnly       = "read-only"
	SandboxWorkspaceWrite = "workspace-write"
	SandboxFullAccess     = "danger-full-access"
)

const (
	ApprovalNever     = "never"
	ApprovalOnRequest = "on-request"
	ApprovalUntrusted = "untrusted"
	ApprovalAutoDeny  = "auto-deny"
)

// Rules is an allow/deny list. Deny always wins; an empty Allow list allows everything
// that is not denied.
type Rules struct {
	Allow []string `yaml:"allow,omitempty" toml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty" toml:"deny,omitempty"`
}

type Policy struct {
	Name           string `yaml:"name,omitempty"`
	SandboxMode    string `yaml:"sandbox_mode,omitempty"`
	ApprovalPolicy string `yaml:"approval_policy,omitempty"`
	Paths          Rules  `yaml:"paths,omitempty"`
	Commands       Rules  `yaml:"commands,omitempty"`
	// NoCreateDirs stops write resolvers from creating missing parent directories.
	NoCreateDirs bool `yaml:"no_create_dirs,omitempty"`
}

type Decision struct {
	Allowed          bool
	Reason           string
	RequiresApproval bool
}

// Default is the policy used when no profile is configured.
func Default() Policy {
	return Policy{SandboxMode: SandboxWorkspaceWrite, ApprovalPolicy: ApprovalNever}
}

// Validate rejects unknown modes so that a typo never silently widens access.
func (p Policy) Validate() error {
	switch p.SandboxMode {
	case "", SandboxReadOnly, SandboxWorkspaceWrite, SandboxFullAccess:
	default:
		return fmt.Errorf("unknown sandbox_mode %q", p.SandboxMode)
	}
	switch p.ApprovalPolicy {
	case "", ApprovalNever, ApprovalOnRequest, ApprovalUntrusted, ApprovalAutoDeny:
	default:
		return fmt.Errorf("unknown approval_policy %q", p.ApprovalPolicy)
	}
	for _, pattern := range append(append([]string{}, p.Paths.Allow...), p.Paths.Deny...) {
		if _, err := path.Match(strings.TrimSuffix(pattern, "/**"), "x"); err != nil {
			return fmt.Errorf("invalid path pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// AllowCommand checks a shell command. requested reports whether the caller itself
// asked for approval (execute_command's requires_approval flag).
func (p Policy) AllowCommand(command string, requested bool) Decision {
	if p.SandboxMode == SandboxReadOnly {
		return Decision{Allowed: false, Reason: "blocked by sandbox read-only"}
	}
	command = strings.TrimSpace(command)
	for _, pattern := range p.Commands.Deny {
		if matchCommand(pattern, command) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("command matches deny rule %q", pattern)}
		}
	}
	if len(p.Commands.Allow) > 0 {
		allowed := false
		for _, pattern := range p.Commands.Allow {
			if matchCommand(pattern, command) {
				allowed = true
				break
			}
		}
		if !allowed {
			return Decision{Allowed: false, Reason: "command not in allow list"}
		}
	}
	needsApproval := false
	switch p.ApprovalPolicy {
	case ApprovalUntrusted:
		needsApproval = true
	case ApprovalOnRequest:
		needsApproval = requested
	case ApprovalAutoDeny:
		if requested {
			return Decision{Allowed: false, Reason: "auto-deny policy"}
		}
	}
	if needsApproval {
		return Decision{Allowed: false, Reason: "requires approval", RequiresApproval: true}
	}
	return Decision{Allowed: true}
}

// AllowWrite checks a workspace-relative, slash separated path for mutation.
func (p Policy) AllowWrite(rel string) Decision {
	if p.SandboxMode == SandboxReadOnly {
		return Decision{Allowed: false, Reason: "blocked by sandbox read-only"}
	}
	return p.AllowRead(rel)
}

// AllowRead checks a workspace-relative, slash separated path for access.
func (p Policy) AllowRead(rel string) Decision {
	rel = filepath.ToSlash(rel)
	for _, pattern := range p.Paths.Deny {
		if matchPath(pattern, rel) {
			return Decision{Allowed: false, Reason: fmt.Sprintf("path matches deny rule %q", pattern)}
		}
	}
	if len(p.Paths.Allow) == 0 {
		return Decision{Allowed: true}
	}
	for _, pattern := range p.Paths.Allow {
		if matchPath(pattern, rel) {
			return Decision{Allowed: true}
		}
	}
	return Decision{Allowed: false, Reason: "path not in allow list"}
}

// matchPath supports filepath.Match globs plus a trailing "/**" for whole subtrees.
func matchPath(pattern, rel string) bool {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	if pattern == rel || pattern == "**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
		if matched, err := path.Match(prefix, firstSegments(rel, strings.Count(prefix, "/")+1)); err == nil && matched {
			return true
		}
		return false
	}
	if matched, err := path.Match(pattern, rel); err == nil && matched {
		return true
	}
	// A bare name such as ".env" matches that base name anywhere.
	if !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(rel)); err == nil && matched {
			return true
		}
	}
	return false
}

func firstSegments(rel string, n int) string {
	parts := strings.Split(rel, "/")
	if len(parts) <= n {
		return rel
	}
	return strings.Join(parts[:n], "/")
}

// matchCommand matches a glob against the whole command, or a plain program name
// against the first word of the command.
func matchCommand(pattern, command string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || command == "" {
		return false
	}
	if pattern == command {
		return true
	}
	if wildcardMatch(pattern, command) {
		return true
	}
	if strings.ContainsAny(pattern, "*? ") {
		return false
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	return filepath.Base(fields[0]) == pattern
}

// wildcardMatch is a glob where '*' also matches '/', which commands contain freely.
func wildcardMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if wildcardMatch(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if s == "" {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if s == "" || pattern[0] != s[0] {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return s == ""
}
