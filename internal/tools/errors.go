package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

type ErrorKind string

const (
	KindInvalidArguments ErrorKind = "InvalidArguments"
	KindNotFound         ErrorKind = "NotFound"
	KindIsDirectory      ErrorKind = "IsDirectory"
	KindPermissionDenied ErrorKind = "PermissionDenied"
	KindPatchConflict    ErrorKind = "PatchConflict"
	KindTimeout          ErrorKind = "Timeout"
	KindCancelled        ErrorKind = "Cancelled"
	KindUnknownTool      ErrorKind = "UnknownTool"
	KindIOError          ErrorKind = "IOError"
	KindInternalError    ErrorKind = "InternalError"
)

// ToolError is the typed failure carried by a failed Result. Detail holds partial data
// such as the output captured before a timeout or a patch conflict report.
type ToolError struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Detail    any       `json:"detail,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds a ToolError with the default retryability for kind.
func NewError(kind ErrorKind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...), Retryable: retryable(kind)}
}

// WithDetail returns a copy of e carrying detail.
func (e *ToolError) WithDetail(detail any) *ToolError {
	cp := *e
	cp.Detail = detail
	return &cp
}

func retryable(kind ErrorKind) bool {
	switch kind {
	case KindTimeout, KindCancelled, KindIOError:
		return true
	}
	return false
}

// Classify maps an arbitrary error onto the taxonomy. Typed errors pass through,
// context errors become Cancelled or Timeout, common filesystem errors keep their
// meaning and everything else is an InternalError.
func Classify(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	switch {
	case errors.As(err, &te):
		return te
	case errors.Is(err, context.Canceled):
		return NewError(KindCancelled, "cancelled: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, "deadline exceeded: %v", err)
	case errors.Is(err, fs.ErrNotExist):
		return NewError(KindNotFound, "%v", err)
	case errors.Is(err, fs.ErrPermission):
		return NewError(KindPermissionDenied, "%v", err)
	}
	return NewError(KindInternalError, "%v", err)
}
