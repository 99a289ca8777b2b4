package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decode 将 Arguments 解码为具体参数结构体，拒绝未知字段。
func (c Call) Decode(v any) error {
	raw, err := json.Marshal(c.Arguments)
	if err != nil {
		return NewError(KindInvalidArguments, "encode arguments: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return NewError(KindInvalidArguments, "%s: %v", c.Name, err)
	}
	return nil
}

// Int accepts a JSON number or a numeric string.
type Int int

func (n *Int) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return fmt.Errorf("invalid integer %s", data)
		}
		v = int(f)
	}
	*n = Int(v)
	return nil
}

// Bool accepts a JSON boolean or the strings "true"/"false"/"1"/"0".
type Bool bool

func (b *Bool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`))
	switch s {
	case "", "null":
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = Bool(v)
	return nil
}

// Strings accepts a JSON array of strings, a JSON-encoded array inside a string, or a
// newline separated string.
type Strings []string

func (s *Strings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("expected string list, got %s", data)
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "[") {
		if err := json.Unmarshal([]byte(text), &list); err == nil {
			*s = list
			return nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			list = append(list, line)
		}
	}
	*s = list
	return nil
}

// JSONValue accepts any JSON value; a string holding a JSON object or array is decoded.
type JSONValue struct {
	Value any
}

func (v *JSONValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if text, ok := raw.(string); ok {
		trimmed := strings.TrimSpace(text)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var inner any
			if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
				raw = inner
			}
		}
	}
	v.Value = raw
	return nil
}

// DecodeInto re-decodes the value into out, rejecting unknown fields.
func (v JSONValue) DecodeInto(out any) error {
	raw, err := json.Marshal(v.Value)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// Object returns the value as a JSON object, or nil when it is empty.
func (v JSONValue) Object() (map[string]any, error) {
	switch val := v.Value.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return val, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected a JSON object")
}
