package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"agentic-edit/internal/policy"
)

func TestWithinRoots(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "inside", "dir")
	if err := os.MkdirAll(inside, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if !withinRoots(inside, []string{root}) {
		t.Fatalf("expected %s inside %s", inside, root)
	}
	sibling := root + "-other"
	if withinRoots(sibling, []string{root}) {
		t.Fatalf("unexpected match for sibling %s", sibling)
	}
	outside := filepath.Join(root, "..", "outside")
	if withinRoots(outside, []string{inside}) {
		t.Fatalf("unexpected match for outside path %s", outside)
	}
}

func TestRunRespectsRoots(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	runner := NewRunner(policy.SandboxFullAccess, nil, root)

	if _, err := runner.Run(context.Background(), CommandSpec{Command: "echo ok", Workdir: other}); !IsSandboxDenied(err) {
		t.Fatalf("expected sandbox denial outside root, got %v", err)
	}
	if _, err := runner.Run(context.Background(), CommandSpec{Command: "echo ok"}); !IsSandboxDenied(err) {
		t.Fatalf("expected sandbox denial without workdir, got %v", err)
	}
	res, err := runner.Run(context.Background(), CommandSpec{Command: "echo ok", Workdir: root})
	if err != nil {
		t.Fatalf("expected command inside root to pass: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "ok" || res.ExitCode != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunReadOnlyBlocksCommands(t *testing.T) {
	runner := NewRunner(policy.SandboxReadOnly, nil, t.TempDir())
	if _, err := runner.Run(context.Background(), CommandSpec{Command: "true"}); !IsSandboxDenied(err) {
		t.Fatalf("expected read-only denial, got %v", err)
	}
}

func TestRunNonZeroExitIsNotError(t *testing.T) {
	root := t.TempDir()
	runner := NewRunner(policy.SandboxFullAccess, nil, root)
	res, err := runner.Run(context.Background(), CommandSpec{Command: "echo oops >&2; exit 3", Workdir: root})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if strings.TrimSpace(res.Stderr) != "oops" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	runner := NewRunner(policy.SandboxFullAccess, nil)
	if _, err := runner.Run(context.Background(), CommandSpec{Command: "  "}); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(root, "survived")
	runner := NewRunner(policy.SandboxFullAccess, nil, root)

	start := time.Now()
	res, err := runner.Run(context.Background(), CommandSpec{
		Command: "echo started; (sleep 2; touch survived) & sleep 10",
		Workdir: root,
		Timeout: time.Second,
	})
	elapsed := time.Since(start)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
	if !strings.Contains(res.Stdout, "started") {
		t.Fatalf("expected partial output, got %q", res.Stdout)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, statErr := os.Stat(marker); statErr == nil {
		t.Fatalf("background child survived the timeout")
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	runner := NewRunner(policy.SandboxFullAccess, nil, root)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	_, err := runner.Run(ctx, CommandSpec{Command: "sleep 10", Workdir: root})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunBoundsOutput(t *testing.T) {
	root := t.TempDir()
	runner := NewRunner(policy.SandboxFullAccess, nil, root)
	res, err := runner.Run(context.Background(), CommandSpec{
		Command:        "for i in $(seq 1 200); do echo line$i; done",
		Workdir:        root,
		MaxOutputBytes: 64,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.StdoutTruncated {
		t.Fatalf("expected truncation flag")
	}
	if !strings.HasPrefix(res.Stdout, "[... ") || !strings.HasSuffix(res.Stdout, "line200\n") {
		t.Fatalf("unexpected bounded output: %q", res.Stdout)
	}
}

func TestRunEnvOverrides(t *testing.T) {
	root := t.TempDir()
	runner := NewRunner(policy.SandboxFullAccess, nil, root)
	res, err := runner.Run(context.Background(), CommandSpec{
		Command: "echo $GREETING-$PAGER",
		Workdir: root,
		Env:     []string{"GREETING=hi", "broken"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "hi-cat" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
}

func TestPoolLimitsConcurrency(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func() error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	cancel()
	if err := pool.Run(ctx, func() error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected blocked acquire to fail with cancel, got %v", err)
	}
	close(hold)
}

func TestByteRingKeepsTail(t *testing.T) {
	ring := newByteRing(4)
	_, _ = ring.Write([]byte("ab"))
	_, _ = ring.Write([]byte("cdef"))
	if !ring.Truncated() {
		t.Fatalf("expected truncation")
	}
	if got := ring.String(); got != "[... 2 bytes truncated ...]\ncdef" {
		t.Fatalf("String() = %q", got)
	}
	_, _ = ring.Write([]byte("0123456789"))
	if got := ring.String(); !strings.HasSuffix(got, "6789") {
		t.Fatalf("String() = %q", got)
	}
}
