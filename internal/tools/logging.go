package tools

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"agentic-edit/internal/logger"
)

// DefaultToolsLogPath 工具调用日志的默认路径。
const DefaultToolsLogPath = "logs/tools.log"

var (
	toolsLog     = logger.Named("tools")
	toolsLogOnce sync.Once
	toolsLogMu   sync.Mutex
	toolsCloser  io.Closer
)

// SetupToolsLog routes the tools log to logPath (DefaultToolsLogPath when empty).
// Only the first call has an effect; later calls return the same closer.
func SetupToolsLog(logPath string) (io.Closer, error) {
	var setupErr error
	toolsLogOnce.Do(func() {
		if logPath == "" {
			logPath = DefaultToolsLogPath
		}
		entry, closer, _, err := logger.SetupComponentFile("tools", logPath)
		if err != nil {
			setupErr = err
			return
		}
		toolsLogMu.Lock()
		toolsLog = entry
		toolsCloser = closer
		toolsLogMu.Unlock()
	})
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()
	return toolsCloser, setupErr
}

// CloseToolsLog 关闭工具日志文件句柄（如已初始化）。
func CloseToolsLog() {
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()
	if toolsCloser != nil {
		_ = toolsCloser.Close()
		toolsCloser = nil
	}
}

func toolsLogger() *logger.LogEntry {
	toolsLogMu.Lock()
	defer toolsLogMu.Unlock()
	return toolsLog
}

func logToolRequest(call Call, recognized bool, workdir string) {
	status := "received"
	if !recognized {
		status = "unknown"
	}
	logger.ForCall(toolsLogger(), string(call.Name), call.ID).Infof("tool_call id=%s name=%s status=%s workdir=%s payload=%s",
		call.ID, call.Name, status, workdir, argsForLog(call.Arguments))
}

func logToolResult(call Call, result Result, workdir string, elapsed time.Duration) {
	errText := "(empty)"
	kind := "-"
	if result.Error != nil {
		errText = sanitizeForLog([]byte(result.Error.Message))
		kind = string(result.Error.Kind)
	}
	logger.ForCall(toolsLogger(), string(call.Name), call.ID).Infof("tool_result id=%s name=%s status=%s kind=%s workdir=%s duration_ms=%d error=%s payload=%s",
		call.ID, call.Name, result.Status, kind, workdir, elapsed.Milliseconds(), errText, argsForLog(call.Arguments))
}

func argsForLog(args map[string]any) string {
	if len(args) == 0 {
		return "(empty)"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "(unencodable)"
	}
	return sanitizeForLog(raw)
}

func sanitizeForLog(raw []byte) string {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "(empty)"
	}
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}
