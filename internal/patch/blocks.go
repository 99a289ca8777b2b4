package patch

import (
	"errors"
	"fmt"
	"strings"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

var (
	ErrMalformed   = errors.New("malformed SEARCH/REPLACE block")
	ErrEmptySearch = errors.New("search text must not be empty")
	ErrNoBlocks    = errors.New("no SEARCH/REPLACE blocks")
)

// Block replaces one exact occurrence of Search with Replace.
type Block struct {
	Search  string `json:"search"`
	Replace string `json:"replace"`
}

// ParseBlocks reads blocks written as
//
//	<<<<<<< SEARCH
//	old lines
//	=======
//	new lines
//	>>>>>>> REPLACE
//
// Text outside blocks is ignored.
func ParseBlocks(diff string) ([]Block, error) {
	lines := strings.Split(strings.ReplaceAll(diff, "\r\n", "\n"), "\n")
	var (
		blocks  []Block
		search  []string
		replace []string
		state   int // 0 outside, 1 search, 2 replace
		opened  int
	)
	for i, line := range lines {
		marker := strings.TrimRight(line, " \t")
		switch state {
		case 0:
			if marker == searchMarker {
				state, opened = 1, i+1
				search, replace = search[:0], replace[:0]
			}
		case 1:
			switch marker {
			case dividerMarker:
				state = 2
			case searchMarker, replaceMarker:
				return nil, fmt.Errorf("%w: line %d: unexpected %q in search section", ErrMalformed, i+1, marker)
			default:
				search = append(search, line)
			}
		case 2:
			switch marker {
			case replaceMarker:
				blocks = append(blocks, Block{
					Search:  joinLines(search),
					Replace: joinLines(replace),
				})
				state = 0
			case searchMarker, dividerMarker:
				return nil, fmt.Errorf("%w: line %d: unexpected %q in replace section", ErrMalformed, i+1, marker)
			default:
				replace = append(replace, line)
			}
		}
	}
	if state != 0 {
		return nil, fmt.Errorf("%w: block opened at line %d is not closed", ErrMalformed, opened)
	}
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}
	return blocks, nil
}

// joinLines restores the trailing newline so a block matches whole lines.
func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Validate checks that every block has search text.
func Validate(blocks []Block) error {
	if len(blocks) == 0 {
		return ErrNoBlocks
	}
	for i, b := range blocks {
		if b.Search == "" {
			return fmt.Errorf("block %d: %w", i, ErrEmptySearch)
		}
	}
	return nil
}
