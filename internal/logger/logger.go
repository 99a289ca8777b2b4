package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry/Fields 暴露底层类型，避免调用方直接依赖 logrus 包。
type LogEntry = logrus.Entry
type Fields = logrus.Fields

// Field names the formatter lifts into the line prefix.
const (
	FieldComponent = "component"
	FieldTool      = "tool"
	FieldCallID    = "call_id"
)

// DefaultLogPath 默认日志文件路径。
const DefaultLogPath = "logs/agentic-edit.log"

// Configure 设置全局日志格式与 caller 输出。
func Configure() {
	logrus.SetReportCaller(true)
	logrus.SetFormatter(PlainFormatter{})
}

// SetLevel parses a logrus level name; unknown names leave the level unchanged.
func SetLevel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}

// SetupFile 将全局日志输出重定向到指定路径（默认 logs/agentic-edit.log）。
// 返回底层文件的 closer 以便调用方清理。
func SetupFile(logPath string) (io.Closer, string, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, "", err
	}
	logrus.SetOutput(f)
	return f, resolved, nil
}

// SetupComponentFile 创建独立的 logger，输出到指定文件并附加 component 字段。
// 返回 entry、文件 closer 及实际路径。
func SetupComponentFile(component, logPath string) (*LogEntry, io.Closer, string, error) {
	f, resolved, err := openLogFile(logPath)
	if err != nil {
		return nil, nil, "", err
	}
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	l.SetOutput(f)

	return withComponent(logrus.NewEntry(l), component), f, resolved, nil
}

// Named 为指定组件创建入口，统一 component 字段。
func Named(component string) *LogEntry {
	return withComponent(logrus.NewEntry(logrus.StandardLogger()), component)
}

// ForCall scopes entry to one tool call; the formatter renders both in the prefix.
func ForCall(entry *LogEntry, tool, callID string) *LogEntry {
	if entry == nil {
		entry = Named("")
	}
	fields := Fields{}
	if tool != "" {
		fields[FieldTool] = tool
	}
	if callID != "" {
		fields[FieldCallID] = callID
	}
	return entry.WithFields(fields)
}

func withComponent(entry *LogEntry, component string) *LogEntry {
	if component == "" {
		return entry
	}
	return entry.WithField(FieldComponent, component)
}

// PlainFormatter 统一输出格式：caller [timestamp] [LEVEL] [component] [tool=... call=...] message fields。
type PlainFormatter struct{}

// Format 实现 logrus Formatter。
func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return []byte{}, nil
	}
	timestamp := entry.Time.UTC().Format(time.RFC3339Nano)
	level := strings.ToUpper(entry.Level.String())
	component := stringField(entry.Data, FieldComponent)
	scope := callScope(entry.Data)
	caller := formatCaller(entry)
	fields := formatFields(entry.Data)

	parts := make([]string, 0, 7)
	if caller != "" {
		parts = append(parts, caller)
	}
	parts = append(parts, fmt.Sprintf("[%s]", timestamp))
	parts = append(parts, fmt.Sprintf("[%s]", level))
	if component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	if scope != "" {
		parts = append(parts, "["+scope+"]")
	}
	parts = append(parts, entry.Message)
	if fields != "" {
		parts = append(parts, fields)
	}
	return []byte(strings.Join(parts, " ") + "\n"), nil
}

// callScope renders "tool=NAME call=ID"; a call id alone stays a plain field.
func callScope(data logrus.Fields) string {
	tool := stringField(data, FieldTool)
	if tool == "" {
		return ""
	}
	if id := stringField(data, FieldCallID); id != "" {
		return "tool=" + tool + " call=" + id
	}
	return "tool=" + tool
}

func stringField(data logrus.Fields, key string) string {
	val, _ := data[key].(string)
	return val
}

func formatCaller(entry *logrus.Entry) string {
	if entry == nil {
		return ""
	}
	if entry.HasCaller() && entry.Caller != nil {
		return fmt.Sprintf("%s:%d", shortenFilePath(entry.Caller.File), entry.Caller.Line)
	}
	if caller, ok := entry.Data["caller"].(string); ok && caller != "" {
		return caller
	}
	return ""
}

func formatFields(fields logrus.Fields) string {
	if len(fields) == 0 {
		return ""
	}
	scoped := stringField(fields, FieldTool) != ""
	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch {
		case k == FieldComponent || k == "caller" || k == FieldTool:
			continue
		case k == FieldCallID && scoped:
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func shortenFilePath(file string) string {
	file = filepath.ToSlash(file)
	if idx := strings.Index(file, "/internal/"); idx != -1 {
		return file[idx+1:]
	}
	if idx := strings.Index(file, "/cmd/"); idx != -1 {
		return file[idx+1:]
	}
	if idx := strings.Index(file, "/agentic-edit/"); idx != -1 {
		return file[idx+len("/agentic-edit/"):]
	}
	return filepath.Base(file)
}

func openLogFile(logPath string) (*os.File, string, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, "", err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, logPath, nil
}
