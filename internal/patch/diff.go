package patch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const diffTimeout = 10 * time.Second

// UnifiedDiff renders a unified diff of one workspace file using the system diff tool.
// A nil before means the file did not exist. Identical content yields an empty diff.
func UnifiedDiff(ctx context.Context, rel string, before, after []byte) (string, error) {
	if bytes.Equal(before, after) {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, diffTimeout)
	defer cancel()

	tmp, err := os.MkdirTemp("", "agentic-edit-diff-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	aRel := filepath.Join("a", filepath.FromSlash(rel))
	bRel := filepath.Join("b", filepath.FromSlash(rel))
	for _, f := range []struct {
		path string
		data []byte
	}{{aRel, before}, {bRel, after}} {
		dst := filepath.Join(tmp, f.path)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(dst, f.data, 0o644); err != nil {
			return "", err
		}
	}

	cmd := exec.CommandContext(ctx, "diff", "-u", aRel, bRel)
	cmd.Dir = tmp
	out, err := cmd.CombinedOutput()
	// diff exits 1 when the inputs differ.
	var exitErr *exec.ExitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.ExitCode() == 1) {
		return "", fmt.Errorf("diff failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if len(lines) >= 2 && strings.HasPrefix(lines[0], "--- ") && strings.HasPrefix(lines[1], "+++ ") {
		lines[0] = "--- a/" + rel
		lines[1] = "+++ b/" + rel
		if before == nil {
			lines[0] = "--- /dev/null"
		}
	}
	return strings.Join(lines, "\n"), nil
}
