package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"agentic-edit/internal/logger"
)

// DefaultTraceLogPath 事件流日志的默认路径。
const DefaultTraceLogPath = "logs/events.log"

// log 复用全局 logger，标记事件组件。
var log = logger.Named("events")

// OpenTraceLog returns an entry writing to path, falling back to the shared logger
// when the file cannot be opened.
func OpenTraceLog(path string) (*logger.LogEntry, io.Closer) {
	if path == "" {
		return logger.Named("events"), nil
	}
	entry, closer, _, err := logger.SetupComponentFile("events", path)
	if err != nil {
		log.Warnf("failed to set up events log file (%s): %v", path, err)
		return logger.Named("events"), nil
	}
	return entry, closer
}

// Trace logs every event published on bus until ctx is done or the bus closes.
// The returned channel is closed when tracing stops.
func Trace(ctx context.Context, bus *Bus, entry *logger.LogEntry) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil {
		close(done)
		return done
	}
	if entry == nil {
		entry = log
	}
	ch := bus.Subscribe()
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				entry.Infof("event type=%T payload=%s", evt, encodePayload(evt))
			}
		}
	}()
	return done
}

// encodePayload renders evt as compact JSON; values that cannot be encoded (such as
// requests carrying a context) fall back to fmt.
func encodePayload(evt any) string {
	if s, ok := evt.(string); ok {
		return s
	}
	if v, ok := evt.(interface{ LogPayload() any }); ok {
		evt = v.LogPayload()
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Sprintf("%+v", evt)
	}
	return string(raw)
}
