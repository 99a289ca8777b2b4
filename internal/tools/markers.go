package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCallMarker is the structured JSON form a model may emit instead of XML tags.
// Example: {"tool":"read_file","id":"call-1","args":{"path":"main.go"}}
type ToolCallMarker struct {
	Tool string          `json:"tool"`
	ID   string          `json:"id"`
	Args json.RawMessage `json:"args"`
}

// ParseMarkers extracts tool calls from model text, in order of appearance. Two forms
// are understood: XML tags named after a tool with one child tag per argument,
//
//	<read_file>
//	<path>main.go</path>
//	</read_file>
//
// and JSON markers inside ```tool fences. Argument values are strings; values that
// look like JSON objects or arrays are decoded. Calls get fresh ids unless the JSON
// marker carries one. Malformed JSON markers are skipped.
func ParseMarkers(text string) ([]Call, error) {
	type found struct {
		at   int
		call Call
	}
	var calls []found

	for _, tag := range scanToolTags(text) {
		calls = append(calls, found{at: tag.at, call: NewCall("", tag.name, tag.args)})
	}
	for _, chunk := range extractJSONChunks(text) {
		var marker ToolCallMarker
		if err := json.Unmarshal([]byte(chunk.body), &marker); err != nil || marker.Tool == "" {
			continue
		}
		args := map[string]any{}
		if len(marker.Args) > 0 && string(marker.Args) != "null" {
			if err := json.Unmarshal(marker.Args, &args); err != nil {
				return nil, fmt.Errorf("tool marker %s: args: %w", marker.Tool, err)
			}
		}
		calls = append(calls, found{at: chunk.at, call: NewCall(marker.ID, ToolName(marker.Tool), args)})
	}

	// Both scans are ordered; merge by offset.
	for i := 1; i < len(calls); i++ {
		for j := i; j > 0 && calls[j].at < calls[j-1].at; j-- {
			calls[j], calls[j-1] = calls[j-1], calls[j]
		}
	}
	out := make([]Call, len(calls))
	for i, f := range calls {
		out[i] = f.call
	}
	return out, nil
}

type toolTag struct {
	at   int
	name ToolName
	args map[string]any
}

func scanToolTags(text string) []toolTag {
	var tags []toolTag
	pos := 0
	for pos < len(text) {
		at, name := nextOpenTag(text, pos)
		if at < 0 {
			break
		}
		open := "<" + string(name) + ">"
		closeTag := "</" + string(name) + ">"
		bodyStart := at + len(open)
		end := strings.Index(text[bodyStart:], closeTag)
		if end < 0 {
			break
		}
		body := text[bodyStart : bodyStart+end]
		tags = append(tags, toolTag{at: at, name: name, args: parseParams(body)})
		pos = bodyStart + end + len(closeTag)
	}
	return tags
}

// nextOpenTag finds the earliest opening tag of any known tool at or after pos.
func nextOpenTag(text string, pos int) (int, ToolName) {
	best := -1
	var bestName ToolName
	for _, name := range AllToolNames {
		i := strings.Index(text[pos:], "<"+string(name)+">")
		if i < 0 {
			continue
		}
		if best < 0 || pos+i < best {
			best = pos + i
			bestName = name
		}
	}
	return best, bestName
}

func parseParams(body string) map[string]any {
	args := map[string]any{}
	pos := 0
	for {
		lt := strings.Index(body[pos:], "<")
		if lt < 0 {
			break
		}
		start := pos + lt
		gt := strings.Index(body[start:], ">")
		if gt < 0 {
			break
		}
		name := body[start+1 : start+gt]
		if !isParamName(name) {
			pos = start + 1
			continue
		}
		valueStart := start + gt + 1
		closeTag := "</" + name + ">"
		end := strings.Index(body[valueStart:], closeTag)
		if end < 0 {
			pos = valueStart
			continue
		}
		args[name] = paramValue(body[valueStart : valueStart+end])
		pos = valueStart + end + len(closeTag)
	}
	return args
}

func isParamName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func paramValue(raw string) any {
	v := strings.TrimPrefix(raw, "\r\n")
	v = strings.TrimPrefix(v, "\n")
	v = strings.TrimSuffix(v, "\n")
	v = strings.TrimSuffix(v, "\r")
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}
	}
	return v
}

type jsonChunk struct {
	at   int
	body string
}

func extractJSONChunks(text string) []jsonChunk {
	var chunks []jsonChunk
	var buf []string
	inBlock := false
	blockAt := 0
	offset := 0
	for _, line := range strings.Split(text, "\n") {
		lineAt := offset
		offset += len(line) + 1
		trim := strings.TrimSpace(line)
		if !inBlock && strings.HasPrefix(trim, "```tool") {
			inBlock = true
			blockAt = lineAt
			buf = nil
			continue
		}
		if inBlock {
			if strings.HasPrefix(trim, "```") {
				inBlock = false
				if len(buf) > 0 {
					chunks = append(chunks, jsonChunk{at: blockAt, body: strings.Join(buf, "\n")})
				}
				buf = nil
				continue
			}
			buf = append(buf, line)
		}
	}
	return chunks
}
