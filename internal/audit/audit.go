// Package audit records one event per tool dispatch.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentic-edit/internal/logger"
)

const DefaultPath = "logs/audit.jsonl"

// Event 描述一次工具调用的审计记录。
type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	CallID     string    `json:"call_id"`
	Tool       string    `json:"tool"`
	Target     string    `json:"target,omitempty"`
	ArgsDigest string    `json:"args_digest,omitempty"`
	Mutating   bool      `json:"mutating"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Message    string    `json:"message,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, evt Event) error
}

// Digest returns a short sha256 of the JSON encoding of args.
func Digest(args any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}

// Stamp fills the id and timestamp when they are missing.
func Stamp(evt Event) Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	return evt
}

// LogSink writes events to a logrus entry.
type LogSink struct {
	log *logger.LogEntry
}

func NewLogSink(entry *logger.LogEntry) *LogSink {
	if entry == nil {
		entry = logger.Named("audit")
	}
	return &LogSink{log: entry}
}

func (s *LogSink) Record(_ context.Context, evt Event) error {
	fields := logger.Fields{
		"outcome":     evt.Outcome,
		"mutating":    evt.Mutating,
		"duration_ms": evt.DurationMs,
	}
	if evt.Target != "" {
		fields["target"] = evt.Target
	}
	if evt.ArgsDigest != "" {
		fields["args"] = evt.ArgsDigest
	}
	if evt.ErrorKind != "" {
		fields["error_kind"] = evt.ErrorKind
	}
	logger.ForCall(s.log, evt.Tool, evt.CallID).WithFields(fields).Info("audit")
	return nil
}

// FileSink appends events as JSON lines.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) Record(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("audit log closed")
	}
	_, err = s.f.Write(data)
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Record(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
