package model

import (
	"errors"
	"fmt"
)

// Code classifies sync failures the way callers need to react to them.
type Code string

const (
	// CodeNetworkUnavailable means the remote store could not be reached,
	// or offline mode is enabled. Retryable.
	CodeNetworkUnavailable Code = "network_unavailable"

	// CodeAccountNotFound means the remote identity is unavailable.
	CodeAccountNotFound Code = "account_not_found"

	// CodePermissionDenied means the remote rejected the operation.
	// Not retryable without user action.
	CodePermissionDenied Code = "permission_denied"

	// CodeConflictResolutionFailed means a conflict could not be resolved.
	CodeConflictResolutionFailed Code = "conflict_resolution_failed"

	// CodeDataCorrupted means a record was missing required fields or
	// carried unparsable values. Scoped to a single record.
	CodeDataCorrupted Code = "data_corrupted"

	// CodeQuotaExceeded means the remote store refused a write for quota
	// reasons. Retryable after user action.
	CodeQuotaExceeded Code = "quota_exceeded"

	// CodeUnknown wraps everything else.
	CodeUnknown Code = "unknown"
)

// SyncError is the error type surfaced by the sync engine. errors.Is
// matches on Code, so callers can classify without unwrapping:
//
//	if errors.Is(err, model.ErrNetworkUnavailable) { ... }
type SyncError struct {
	Code    Code
	Message string
	Err     error
}

// Sentinel values for errors.Is classification.
var (
	ErrNetworkUnavailable       = &SyncError{Code: CodeNetworkUnavailable, Message: "network unavailable"}
	ErrAccountNotFound          = &SyncError{Code: CodeAccountNotFound, Message: "account not found"}
	ErrPermissionDenied         = &SyncError{Code: CodePermissionDenied, Message: "permission denied"}
	ErrConflictResolutionFailed = &SyncError{Code: CodeConflictResolutionFailed, Message: "conflict resolution failed"}
	ErrDataCorrupted            = &SyncError{Code: CodeDataCorrupted, Message: "data corrupted"}
	ErrQuotaExceeded            = &SyncError{Code: CodeQuotaExceeded, Message: "quota exceeded"}
)

func (e *SyncError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is matches any SyncError with the same code, so sentinel comparisons
// work regardless of message or wrapped cause.
func (e *SyncError) Is(target error) bool {
	var se *SyncError
	if !errors.As(target, &se) {
		return false
	}
	return e.Code == se.Code
}

// NewSyncError builds a SyncError wrapping an underlying cause.
func NewSyncError(code Code, message string, err error) *SyncError {
	return &SyncError{Code: code, Message: message, Err: err}
}

// SyncErrorf builds a SyncError with a formatted message.
func SyncErrorf(code Code, format string, args ...any) *SyncError {
	return &SyncError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the classification code from err, or CodeUnknown for
// errors that didn't originate in the sync engine.
func CodeOf(err error) Code {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}

// Retryable reports whether the failure is transient: the document's
// sync-needed flag should stay set and a later pass may succeed without
// user action.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeNetworkUnavailable, CodeQuotaExceeded:
		return true
	}
	return false
}
