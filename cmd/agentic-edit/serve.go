package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"agentic-edit/internal/events"
	"agentic-edit/internal/history"
	"agentic-edit/internal/tools"
	"agentic-edit/internal/tools/dispatcher"
)

const maxRequestBytes = 8 << 20

// request is one JSON line read from stdin.
//
//	{"type":"call","id":"c1","name":"read_file","arguments":{"path":"a.txt"}}
//	{"type":"text","text":"<read_file><path>a.txt</path></read_file>"}
//	{"type":"approval","approval_id":"c1","approved":true}
//	{"type":"cancel","id":"c1"}
//	{"type":"new_turn"}
//	{"type":"list_tools"}
type request struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Text       string         `json:"text,omitempty"`
	ApprovalID string         `json:"approval_id,omitempty"`
	Approved   bool           `json:"approved,omitempty"`
}

// reply is written for requests that do not produce tool events.
type reply struct {
	Type    string              `json:"type"`
	ID      string              `json:"id,omitempty"`
	Error   string              `json:"error,omitempty"`
	Calls   []string            `json:"calls,omitempty"`
	Tools   []tools.ToolName    `json:"tools,omitempty"`
	Servers map[string][]string `json:"mcp_servers,omitempty"`
}

type server struct {
	svc        *services
	dispatcher *dispatcher.Dispatcher
	journal    *history.Store

	outMu sync.Mutex
	enc   *json.Encoder

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func newServer(svc *services, bus *events.Bus, out io.Writer) *server {
	s := &server{
		svc:     svc,
		enc:     json.NewEncoder(out),
		running: map[string]context.CancelFunc{},
	}
	s.dispatcher = dispatcher.New(svc.runtime, svc.session, bus).WithSink(s.onEvent)
	return s
}

// withJournal records every request line to store before it is handled.
func (s *server) withJournal(store *history.Store) *server {
	s.journal = store
	return s
}

// serve reads requests until in is exhausted or ctx is done, then waits for the calls
// still in flight. Once input ends no approval can arrive, so pending approvals fail.
func (s *server) serve(ctx context.Context, in io.Reader) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	s.dispatcher.Start(ctx)
	defer func() {
		s.svc.session.Approvals.Close()
		s.cancelAll()
		stop()
		s.dispatcher.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.svc.session.Approvals.Close()
				s.dispatcher.Drain()
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			s.handle(ctx, line)
		}
	}
}

func (s *server) handle(ctx context.Context, line string) {
	if s.journal != nil {
		if err := s.journal.Append(s.svc.session.ID, line); err != nil {
			log.Warnf("journal request: %v", err)
		}
	}
	var req request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.write(reply{Type: "error", Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	switch req.Type {
	case "call":
		s.enqueue(ctx, tools.NewCall(req.ID, tools.ToolName(req.Name), req.Arguments))
	case "text":
		calls, err := tools.ParseMarkers(req.Text)
		if err != nil {
			s.write(reply{Type: "error", ID: req.ID, Error: err.Error()})
			return
		}
		ids := make([]string, 0, len(calls))
		reqs := make([]tools.DispatchRequest, 0, len(calls))
		for _, call := range calls {
			ids = append(ids, call.ID)
			reqs = append(reqs, tools.DispatchRequest{Ctx: s.track(ctx, call.ID), Call: call})
		}
		s.write(reply{Type: "parsed", ID: req.ID, Calls: ids})
		// 模型文本中的调用按出现顺序依次执行。
		s.dispatcher.InOrder(func() {
			for _, r := range reqs {
				s.dispatcher.Run(ctx, r)
			}
		})
	case "approval":
		if !s.svc.session.Approvals.Resolve(tools.ApprovalDecision{ApprovalID: req.ApprovalID, Approved: req.Approved}) {
			s.write(reply{Type: "error", ID: req.ApprovalID, Error: "missing approval id"})
		}
	case "cancel":
		s.mu.Lock()
		cancel, ok := s.running[req.ID]
		s.mu.Unlock()
		if !ok {
			s.write(reply{Type: "error", ID: req.ID, Error: "no such call in flight"})
			return
		}
		cancel()
	case "new_turn":
		// 新回合排在此前文本调用之后。
		s.dispatcher.InOrder(func() {
			s.svc.session.BeginTurn()
			s.write(reply{Type: "turn_started"})
		})
	case "list_tools":
		s.write(s.listTools(ctx))
	default:
		s.write(reply{Type: "error", ID: req.ID, Error: fmt.Sprintf("unknown request type %q", req.Type)})
	}
}

// enqueue hands call to the bus-served dispatcher so approvals and cancels can still
// be read while it runs.
func (s *server) enqueue(ctx context.Context, call tools.Call) {
	callCtx := s.track(ctx, call.ID)
	if err := s.dispatcher.Enqueue(ctx, tools.DispatchRequest{Ctx: callCtx, Call: call}); err != nil {
		s.untrack(call.ID)
		s.write(reply{Type: "error", ID: call.ID, Error: err.Error()})
	}
}

func (s *server) track(ctx context.Context, id string) context.Context {
	callCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if prev, ok := s.running[id]; ok {
		prev()
	}
	s.running[id] = cancel
	s.mu.Unlock()
	return callCtx
}

func (s *server) untrack(id string) {
	s.mu.Lock()
	if cancel, ok := s.running[id]; ok {
		cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()
}

func (s *server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.running {
		cancel()
		delete(s.running, id)
	}
}

func (s *server) onEvent(ev tools.ToolEvent) {
	s.write(ev)
	if ev.Type == tools.EventItemCompleted {
		s.untrack(ev.CallID)
	}
}

func (s *server) listTools(ctx context.Context) reply {
	out := reply{Type: "tools", Tools: s.svc.runtime.Registry().Names()}
	if s.svc.mcp == nil {
		return out
	}
	for _, name := range s.svc.mcp.Servers() {
		names, err := s.svc.mcp.ListTools(ctx, name)
		if err != nil {
			log.Warnf("list tools of mcp server %s: %v", name, err)
			continue
		}
		sort.Strings(names)
		if out.Servers == nil {
			out.Servers = map[string][]string{}
		}
		out.Servers[name] = names
	}
	return out
}

func (s *server) write(v any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.enc.Encode(v); err != nil {
		log.Warnf("write response: %v", err)
	}
}
