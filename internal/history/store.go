// Package history journals the requests a session received so a run can be replayed.
package history

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Entry struct {
	Session string          `json:"session"`
	Request json.RawMessage `json:"request"`
	TS      time.Time       `json:"ts"`
}

// Store appends entries to a JSONL file. It is safe for one writer.
type Store struct {
	Path string
}

func New(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) ensureDir() error {
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return errors.New("history store path is empty")
	}
	return os.MkdirAll(filepath.Dir(s.Path), 0o755)
}

// Append records one raw request line. Blank lines and lines that are not JSON are
// skipped without error.
func (s *Store) Append(session, line string) error {
	if s == nil {
		return errors.New("history store is nil")
	}
	line = strings.TrimSpace(line)
	if line == "" || !json.Valid([]byte(line)) {
		return nil
	}
	if err := s.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := Entry{Session: session, Request: json.RawMessage(line), TS: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// Load returns the recorded entries, optionally only those of session. Corrupt lines
// are skipped.
func (s *Store) Load(session string) ([]Entry, error) {
	if s == nil {
		return nil, errors.New("history store is nil")
	}
	if strings.TrimSpace(s.Path) == "" {
		return nil, errors.New("history store path is empty")
	}
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 8<<20)

	var out []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil || len(e.Request) == 0 {
			continue
		}
		if session != "" && e.Session != session {
			continue
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Requests returns the raw request lines of entries, in order.
func Requests(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Request))
	}
	return out
}
