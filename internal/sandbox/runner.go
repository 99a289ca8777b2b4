package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"agentic-edit/internal/policy"
)

const (
	DefaultTimeout        = 2 * time.Minute
	DefaultMaxOutputBytes = 64 * 1024
	// waitDelay bounds how long Wait blocks on pipes still held by orphaned grandchildren.
	waitDelay = 2 * time.Second
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrTimeout      = errors.New("command timed out")
	ErrSpawn        = errors.New("failed to start command")
)

// SandboxError 标记因沙箱或权限不足导致的拒绝。
type SandboxError struct {
	Reason string
}

func (e SandboxError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "sandbox denied"
}

// IsSandboxDenied reports whether err is a sandbox refusal.
func IsSandboxDenied(err error) bool {
	var se SandboxError
	return errors.As(err, &se)
}

type CommandSpec struct {
	Command        string
	Workdir        string
	Env            []string
	Timeout        time.Duration
	MaxOutputBytes int
	// TTY runs the command under a pseudo terminal; stderr is merged into stdout.
	TTY bool
}

type CommandResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
}

// Runner spawns shell commands confined to a set of roots.
type Runner struct {
	mode  string
	roots []string
	pool  *Pool
}

func NewRunner(sandboxMode string, pool *Pool, roots ...string) *Runner {
	return &Runner{mode: sandboxMode, roots: cleanRoots(roots), pool: pool}
}

func (r *Runner) Mode() string { return r.mode }

// Run executes spec.Command and waits for it. A non-zero exit is not an error.
// On timeout the whole process group is killed and ErrTimeout is returned together
// with the output captured so far; on cancellation the error wraps ctx.Err().
func (r *Runner) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return CommandResult{}, ErrEmptyCommand
	}
	if r.mode == policy.SandboxReadOnly {
		return CommandResult{}, SandboxError{Reason: "sandbox read-only: command blocked"}
	}
	roots := r.allowedRoots(spec.Workdir)
	if len(roots) > 0 {
		if spec.Workdir == "" {
			return CommandResult{}, SandboxError{Reason: "workdir required for sandboxed command"}
		}
		if !withinRoots(spec.Workdir, roots) {
			return CommandResult{}, SandboxError{Reason: "workdir outside allowed roots"}
		}
	}

	var result CommandResult
	err := r.pool.Run(ctx, func() error {
		var runErr error
		result, runErr = r.run(ctx, spec, roots)
		return runErr
	})
	return result, err
}

func (r *Runner) run(ctx context.Context, spec CommandSpec, roots []string) (CommandResult, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxOut := spec.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = DefaultMaxOutputBytes
	}

	cmd := r.wrap(spec.Command, roots)
	cmd.Dir = spec.Workdir
	cmd.Env = withCommandEnv(os.Environ(), spec.Env)
	cmd.WaitDelay = waitDelay

	stdout := newByteRing(maxOut)
	stderr := newByteRing(maxOut)

	start := time.Now()
	var copyDone chan struct{}
	if spec.TTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return CommandResult{}, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		defer ptmx.Close()
		copyDone = make(chan struct{})
		go func() {
			_, _ = io.Copy(stdout, ptmx)
			close(copyDone)
		}()
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		setProcessGroup(cmd)
		if err := cmd.Start(); err != nil {
			return CommandResult{}, fmt.Errorf("%w: %v", ErrSpawn, err)
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	var stopReason error
	select {
	case err = <-waitErr:
	case <-timer.C:
		stopReason = ErrTimeout
	case <-ctx.Done():
		stopReason = ctx.Err()
	}
	if stopReason != nil {
		killProcessGroup(cmd)
		err = <-waitErr
	}
	if copyDone != nil {
		// Closing the master unblocks the copier when a grandchild still holds the tty.
		select {
		case <-copyDone:
		case <-time.After(100 * time.Millisecond):
		}
	}

	result := CommandResult{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode(cmd, err),
		StdoutTruncated: stdout.Truncated(),
		StderrTruncated: stderr.Truncated(),
		Duration:        time.Since(start),
	}
	switch {
	case errors.Is(stopReason, ErrTimeout):
		return result, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case stopReason != nil:
		return result, fmt.Errorf("command cancelled: %w", stopReason)
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		return result, fmt.Errorf("wait: %w", err)
	}
	return result, nil
}

// wrap builds the platform specific command line for the sandbox mode.
func (r *Runner) wrap(command string, roots []string) *exec.Cmd {
	shell := shellPath()
	if r.mode != policy.SandboxFullAccess {
		if runtime.GOOS == "darwin" {
			if path, err := exec.LookPath("sandbox-exec"); err == nil {
				return exec.Command(path, "-p", seatbeltProfile(r.mode, roots), shell, "-c", command)
			}
		}
		if runtime.GOOS == "linux" {
			if path, err := exec.LookPath("landlock-run"); err == nil {
				return exec.Command(path, shell, "-c", command)
			}
		}
	}
	return exec.Command(shell, "-c", command)
}

func shellPath() string {
	if path, err := exec.LookPath("bash"); err == nil {
		return path
	}
	return "/bin/sh"
}

func (r *Runner) allowedRoots(workdir string) []string {
	if len(r.roots) > 0 {
		return r.roots
	}
	if workdir != "" {
		return cleanRoots([]string{workdir})
	}
	return nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func seatbeltProfile(mode string, roots []string) string {
	perms := "file-read*"
	if mode != policy.SandboxReadOnly {
		perms += " file-write*"
	}
	roots = cleanRoots(roots)
	var builder strings.Builder
	builder.WriteString("(version 1)\n")
	builder.WriteString("(deny default)\n")
	builder.WriteString("(allow process*)\n")
	builder.WriteString("(deny network*)\n")
	builder.WriteString("(allow " + perms)
	if len(roots) == 0 {
		builder.WriteString(")\n")
		return builder.String()
	}
	for _, root := range roots {
		builder.WriteString(` (subpath "` + root + `")`)
	}
	builder.WriteString(")\n")
	return builder.String()
}

func withCommandEnv(base []string, extra []string) []string {
	env := append([]string{}, base...)
	env = setEnv(env, "NO_COLOR", "1")
	env = setEnv(env, "TERM", "dumb")
	env = setEnv(env, "PAGER", "cat")
	env = setEnv(env, "GIT_PAGER", "cat")
	env = setEnv(env, "GIT_TERMINAL_PROMPT", "0")
	for _, kv := range extra {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		env = setEnv(env, key, val)
	}
	return env
}

func setEnv(env []string, key, val string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + val
			return env
		}
	}
	return append(env, prefix+val)
}

func cleanRoots(roots []string) []string {
	seen := make(map[string]struct{})
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			continue
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		cleaned = append(cleaned, abs)
	}
	return cleaned
}

func withinRoots(path string, roots []string) bool {
	if len(roots) == 0 {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, r := range roots {
		rel, err := filepath.Rel(r, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// byteRing keeps the last max bytes written and counts what it dropped.
// Writes never fail and never block, so a chatty process cannot stall on its pipe.
type byteRing struct {
	mu      sync.Mutex
	buf     []byte
	max     int
	dropped int64
}

func newByteRing(max int) *byteRing {
	return &byteRing{max: max}
}

func (r *byteRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(p)
	if n >= r.max {
		r.dropped += int64(len(r.buf) + n - r.max)
		r.buf = append(r.buf[:0], p[n-r.max:]...)
		return n, nil
	}
	if len(r.buf)+n > r.max {
		drop := len(r.buf) + n - r.max
		r.dropped += int64(drop)
		r.buf = append(r.buf[:0], r.buf[drop:]...)
	}
	r.buf = append(r.buf, p...)
	return n, nil
}

func (r *byteRing) Truncated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped > 0
}

// String returns the retained tail, prefixed with a marker when bytes were dropped.
func (r *byteRing) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped == 0 {
		return string(r.buf)
	}
	return fmt.Sprintf("[... %d bytes truncated ...]\n%s", r.dropped, r.buf)
}
