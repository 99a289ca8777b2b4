// Package todo keeps the session task list as a JSON document inside the workspace.
package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentic-edit/internal/workspace"
)

const DefaultPath = ".agentic-edit/todos.json"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Action string

const (
	ActionCreate        Action = "create"
	ActionAddTask       Action = "add_task"
	ActionUpdate        Action = "update"
	ActionMarkProgress  Action = "mark_progress"
	ActionMarkCompleted Action = "mark_completed"
)

var (
	ErrInvalid      = errors.New("invalid todo operation")
	ErrTaskNotFound = errors.New("task not found")
)

type Item struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Status    Status    `json:"status"`
	Priority  Priority  `json:"priority"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type List struct {
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Draft is a task supplied by the caller when creating a list.
type Draft struct {
	Content  string   `json:"content"`
	Priority Priority `json:"priority,omitempty"`
	Status   Status   `json:"status,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

type Op struct {
	Action   Action
	TaskID   string
	Content  string
	Priority Priority
	Status   Status
	Notes    string
	Todos    []Draft
}

// Store serializes updates and commits each one with an atomic file replace.
type Store struct {
	mu  sync.Mutex
	ws  *workspace.Workspace
	rel string
	now func() time.Time
}

func NewStore(ws *workspace.Workspace, rel string) *Store {
	if rel == "" {
		rel = DefaultPath
	}
	return &Store{ws: ws, rel: rel, now: time.Now}
}

func (s *Store) Read(ctx context.Context) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return List{}, err
	}
	return s.load()
}

// Apply validates op against the current list and commits the result. An invalid
// op leaves the stored list untouched.
func (s *Store) Apply(ctx context.Context, op Op) (List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.load()
	if err != nil {
		return List{}, err
	}
	next, err := s.apply(current, op)
	if err != nil {
		return List{}, err
	}
	if err := ctx.Err(); err != nil {
		return List{}, err
	}
	if err := s.save(next); err != nil {
		return List{}, err
	}
	return next, nil
}

func (s *Store) apply(list List, op Op) (List, error) {
	now := s.now()
	items := append([]Item(nil), list.Items...)
	switch op.Action {
	case ActionCreate:
		drafts := op.Todos
		if len(drafts) == 0 {
			for _, line := range ParseTaskLines(op.Content) {
				drafts = append(drafts, Draft{Content: line})
			}
		}
		if len(drafts) == 0 {
			return List{}, fmt.Errorf("%w: create needs todos or content", ErrInvalid)
		}
		items = items[:0]
		for _, d := range drafts {
			item, err := s.newItem(d, now)
			if err != nil {
				return List{}, err
			}
			items = append(items, item)
		}
	case ActionAddTask:
		item, err := s.newItem(Draft{Content: op.Content, Priority: op.Priority, Status: op.Status, Notes: op.Notes}, now)
		if err != nil {
			return List{}, err
		}
		items = append(items, item)
	case ActionUpdate, ActionMarkProgress, ActionMarkCompleted:
		idx := indexOf(items, op.TaskID)
		if idx < 0 {
			return List{}, fmt.Errorf("%w: %q", ErrTaskNotFound, op.TaskID)
		}
		item := items[idx]
		switch op.Action {
		case ActionMarkProgress:
			item.Status = StatusInProgress
		case ActionMarkCompleted:
			item.Status = StatusCompleted
		default:
			if c := strings.TrimSpace(op.Content); c != "" {
				item.Content = c
			}
			if op.Priority != "" {
				if !validPriority(op.Priority) {
					return List{}, fmt.Errorf("%w: priority %q", ErrInvalid, op.Priority)
				}
				item.Priority = op.Priority
			}
			if op.Status != "" {
				if !validStatus(op.Status) {
					return List{}, fmt.Errorf("%w: status %q", ErrInvalid, op.Status)
				}
				item.Status = op.Status
			}
		}
		if op.Notes != "" {
			item.Notes = op.Notes
		}
		item.UpdatedAt = now
		items[idx] = item
	default:
		return List{}, fmt.Errorf("%w: unknown action %q", ErrInvalid, op.Action)
	}
	return List{Items: items, UpdatedAt: now}, nil
}

func (s *Store) newItem(d Draft, now time.Time) (Item, error) {
	content := strings.TrimSpace(d.Content)
	if content == "" {
		return Item{}, fmt.Errorf("%w: task content is required", ErrInvalid)
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if d.Status == "" {
		d.Status = StatusPending
	}
	if !validPriority(d.Priority) {
		return Item{}, fmt.Errorf("%w: priority %q", ErrInvalid, d.Priority)
	}
	if !validStatus(d.Status) {
		return Item{}, fmt.Errorf("%w: status %q", ErrInvalid, d.Status)
	}
	return Item{
		ID:        "task_" + uuid.NewString()[:8],
		Content:   content,
		Status:    d.Status,
		Priority:  d.Priority,
		Notes:     d.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Store) load() (List, error) {
	p, err := s.ws.Resolve(s.rel)
	if err != nil {
		return List{}, err
	}
	data, err := os.ReadFile(p.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return List{}, nil
	}
	if err != nil {
		return List{}, fmt.Errorf("read todos: %w", err)
	}
	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		return List{}, fmt.Errorf("decode todos: %w", err)
	}
	return list, nil
}

func (s *Store) save(list List) error {
	p, err := s.ws.Resolve(s.rel)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	unlock := s.ws.Lock(p)
	defer unlock()
	_, err = s.ws.WriteFileAtomic(p, append(data, '\n'), workspace.WriteOptions{CreateDirs: true})
	return err
}

func indexOf(items []Item, id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func validPriority(p Priority) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

var listPrefix = regexp.MustCompile(`^(?:[-*+]\s+|\d+[.)]\s+)?(?:\[[ xX]?\]\s*)?`)

// ParseTaskLines turns a markdown style list into task contents.
func ParseTaskLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listPrefix.ReplaceAllString(line, ""))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
