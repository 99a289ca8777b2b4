package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestApprovalStoreCloseReleasesWaiters(t *testing.T) {
	store := NewApprovalStore()
	store.Resolve(ApprovalDecision{ApprovalID: "early", Approved: true})

	errs := make(chan error, 1)
	go func() {
		_, err := store.Wait(context.Background(), "pending")
		errs <- err
	}()
	deadline := time.Now().Add(5 * time.Second)
	for !store.Pending("pending") {
		if time.Now().After(deadline) {
			t.Fatalf("waiter never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	store.Close()

	var te *ToolError
	select {
	case err := <-errs:
		if !errors.As(err, &te) || te.Kind != KindPermissionDenied {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("waiter not released by Close")
	}

	if _, err := store.Wait(context.Background(), "late"); !errors.As(err, &te) {
		t.Fatalf("wait after close: %v", err)
	}
	if ok, err := store.Wait(context.Background(), "early"); err != nil || !ok {
		t.Fatalf("recorded decision lost: %v %v", ok, err)
	}
}
