package patch

import (
	"fmt"
	"strings"
)

const (
	ReasonNotFound  = "not_found"
	ReasonAmbiguous = "ambiguous"

	previewLimit = 120
)

// Conflict describes the first block that could not be applied.
type Conflict struct {
	Block   int    `json:"block"`
	Reason  string `json:"reason"`
	Lines   []int  `json:"lines,omitempty"`
	Preview string `json:"search_preview"`
}

// ConflictError is returned by Apply when a block does not match exactly once.
type ConflictError struct {
	Conflict Conflict
}

func (e *ConflictError) Error() string {
	c := e.Conflict
	if c.Reason == ReasonAmbiguous {
		return fmt.Sprintf("block %d: search text matches %d locations (lines %s)", c.Block, len(c.Lines), joinInts(c.Lines))
	}
	return fmt.Sprintf("block %d: search text not found", c.Block)
}

// Apply applies blocks in order to content. Each block's search text must occur exactly
// once in the content produced by the blocks before it. Nothing is returned on conflict,
// so callers never see a partially patched result.
func Apply(content string, blocks []Block) (string, error) {
	if err := Validate(blocks); err != nil {
		return "", err
	}
	out := content
	for i, b := range blocks {
		next, conflict := applyOne(out, b)
		if conflict != nil {
			conflict.Block = i
			conflict.Preview = preview(b.Search)
			return "", &ConflictError{Conflict: *conflict}
		}
		out = next
	}
	return out, nil
}

func applyOne(content string, b Block) (string, *Conflict) {
	offsets := findAll(content, b.Search)
	switch len(offsets) {
	case 1:
		at := offsets[0]
		return content[:at] + b.Replace + content[at+len(b.Search):], nil
	case 0:
		return "", &Conflict{Reason: ReasonNotFound}
	default:
		lines := make([]int, 0, len(offsets))
		for _, off := range offsets {
			lines = append(lines, 1+strings.Count(content[:off], "\n"))
		}
		return "", &Conflict{Reason: ReasonAmbiguous, Lines: lines}
	}
}

// findAll returns the byte offsets of every occurrence of sub, overlapping included.
func findAll(s, sub string) []int {
	var offsets []int
	for start := 0; start <= len(s)-len(sub); {
		i := strings.Index(s[start:], sub)
		if i < 0 {
			break
		}
		offsets = append(offsets, start+i)
		start += i + 1
	}
	return offsets
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return string(runes[:previewLimit]) + "..."
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
