package ir

import (
	"errors"
	"fmt"
)

// Error is the error type returned by every closuretree operation.
//
// Errors carry a Code so callers can branch without string matching:
//   - INVALID_ARGUMENT: rejected before any query executed
//   - STORAGE_ERROR: connectivity or constraint failure; the transaction rolled back
//   - CYCLE_DETECTED: a move would place a node under its own subtree
//   - NOT_FOUND: a referenced node is not part of the hierarchy
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the operation that failed (e.g. "move", "store.insert").
	Op string

	// NodeID identifies the node the operation was acting on, if any.
	NodeID NodeID

	// Message is a human-readable description.
	Message string

	// Constraint is true for storage errors caused by a constraint violation.
	Constraint bool

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes errors.
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	ErrCodeStorage         ErrorCode = "STORAGE_ERROR"
	ErrCodeCycle           ErrorCode = "CYCLE_DETECTED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Op != "" && e.NodeID != "":
		return fmt.Sprintf("%s: %s: %s (node=%s)", e.Code, e.Op, msg, e.NodeID)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewInvalidArgument creates an INVALID_ARGUMENT error.
func NewInvalidArgument(op, message string) *Error {
	return &Error{Code: ErrCodeInvalidArgument, Op: op, Message: message}
}

// NewStorageError wraps a driver error as a STORAGE_ERROR.
func NewStorageError(op string, err error, constraint bool) *Error {
	return &Error{Code: ErrCodeStorage, Op: op, Err: err, Constraint: constraint}
}

// NewCycleError reports that moving node under target would create a cycle.
func NewCycleError(node, target NodeID) *Error {
	return &Error{
		Code:    ErrCodeCycle,
		Op:      "move",
		NodeID:  node,
		Message: fmt.Sprintf("cannot move node under its own subtree (target parent %s)", target),
	}
}

// NewNotFound reports that id has no closure self row.
func NewNotFound(op string, id NodeID) *Error {
	return &Error{Code: ErrCodeNotFound, Op: op, NodeID: id, Message: "node is not part of the hierarchy"}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsInvalidArgument returns true if err is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool { return CodeOf(err) == ErrCodeInvalidArgument }

// IsStorageError returns true if err is a STORAGE_ERROR.
func IsStorageError(err error) bool { return CodeOf(err) == ErrCodeStorage }

// IsCycleError returns true if err is a CYCLE_DETECTED error.
func IsCycleError(err error) bool { return CodeOf(err) == ErrCodeCycle }

// IsNotFound returns true if err is a NOT_FOUND error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsConstraintViolation returns true for storage errors caused by a constraint.
func IsConstraintViolation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == ErrCodeStorage && e.Constraint
}
