package tools

import (
	"context"
	"fmt"
	"sync"
)

type ApprovalDecision struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
}

// ApprovalStore 在调用等待审批时挂起，直到外部给出决定。
// A decision that arrives before anyone waits is remembered.
type ApprovalStore struct {
	mu       sync.Mutex
	waiters  map[string]chan bool
	decided  map[string]bool
	decidedN int
	closed   bool
}

func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		waiters: map[string]chan bool{},
		decided: map[string]bool{},
	}
}

func (s *ApprovalStore) Wait(ctx context.Context, approvalID string) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("approval store not configured")
	}
	if approvalID == "" {
		return false, fmt.Errorf("missing approval id")
	}
	s.mu.Lock()
	if decided, ok := s.decided[approvalID]; ok {
		delete(s.decided, approvalID)
		s.decidedN = len(s.decided)
		s.mu.Unlock()
		return decided, nil
	}
	if s.closed {
		s.mu.Unlock()
		return false, errApprovalsClosed()
	}
	ch := make(chan bool, 1)
	s.waiters[approvalID] = ch
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waiters, approvalID)
		s.mu.Unlock()
		return false, ctx.Err()
	case approved, ok := <-ch:
		if !ok {
			return false, errApprovalsClosed()
		}
		return approved, nil
	}
}

// Close ends approvals: current and later waits fail with PermissionDenied unless a
// decision was already recorded for them.
func (s *ApprovalStore) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.waiters {
		delete(s.waiters, id)
		close(ch)
	}
}

func errApprovalsClosed() *ToolError {
	return NewError(KindPermissionDenied, "approval required but no approver is left to answer")
}

// Pending reports whether a call is currently waiting for approvalID.
func (s *ApprovalStore) Pending(approvalID string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.waiters[approvalID]
	return ok
}

func (s *ApprovalStore) Resolve(decision ApprovalDecision) bool {
	if s == nil || decision.ApprovalID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiters[decision.ApprovalID]; ok {
		delete(s.waiters, decision.ApprovalID)
		ch <- decision.Approved
		close(ch)
		return true
	}
	s.decided[decision.ApprovalID] = decision.Approved
	s.decidedN++
	// Best-effort bound: keep the last ~256 decisions to avoid unbounded growth.
	if s.decidedN > 256 {
		for k := range s.decided {
			delete(s.decided, k)
			break
		}
		s.decidedN = len(s.decided)
	}
	return true
}
