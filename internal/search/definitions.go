package search

import (
	"bufio"
	"bytes"
	"path/filepath"
	"regexp"
	"strings"
)

type Definition struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Line      int    `json:"line"`
	Signature string `json:"signature"`
}

type defRule struct {
	kind string
	re   *regexp.Regexp
}

var (
	goRules = []defRule{
		{"method", regexp.MustCompile(`^func\s+\([^)]*\)\s*([A-Za-z_]\w*)`)},
		{"function", regexp.MustCompile(`^func\s+([A-Za-z_]\w*)`)},
		{"type", regexp.MustCompile(`^type\s+([A-Za-z_]\w*)`)},
	}
	pythonRules = []defRule{
		{"class", regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`)},
		{"function", regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`)},
	}
	jsRules = []defRule{
		{"class", regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`)},
		{"function", regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)`)},
		{"interface", regexp.MustCompile(`^\s*(?:export\s+)?interface\s+([A-Za-z_$][\w$]*)`)},
		{"type", regexp.MustCompile(`^\s*(?:export\s+)?type\s+([A-Za-z_$][\w$]*)\s*=`)},
		{"function", regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>`)},
	}
	rustRules = []defRule{
		{"function", regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+([A-Za-z_]\w*)`)},
		{"struct", regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+([A-Za-z_]\w*)`)},
		{"enum", regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?enum\s+([A-Za-z_]\w*)`)},
		{"trait", regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?trait\s+([A-Za-z_]\w*)`)},
	}
	javaRules = []defRule{
		{"class", regexp.MustCompile(`^\s*(?:(?:public|protected|private|abstract|final|static)\s+)*(?:class|interface|enum|record)\s+([A-Za-z_]\w*)`)},
		{"method", regexp.MustCompile(`^\s*(?:(?:public|protected|private|static|final|synchronized|abstract)\s+)+[\w<>\[\],\s]+\s+([A-Za-z_]\w*)\s*\(`)},
	}
)

var rulesByExt = map[string][]defRule{
	".go":   goRules,
	".py":   pythonRules,
	".js":   jsRules,
	".jsx":  jsRules,
	".mjs":  jsRules,
	".ts":   jsRules,
	".tsx":  jsRules,
	".rs":   rustRules,
	".java": javaRules,
}

// Supported reports whether definitions can be extracted from the file.
func Supported(name string) bool {
	_, ok := rulesByExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ExtractDefinitions returns the top-level style definitions found in content,
// in source order. The first rule that matches a line wins.
func ExtractDefinitions(name string, content []byte) []Definition {
	rules := rulesByExt[strings.ToLower(filepath.Ext(name))]
	if len(rules) == 0 {
		return nil
	}
	var defs []Definition
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		for _, r := range rules {
			m := r.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			defs = append(defs, Definition{
				Name:      m[1],
				Kind:      r.kind,
				Line:      line,
				Signature: clip(strings.TrimSpace(text)),
			})
			break
		}
	}
	return defs
}
