package organizer

import (
	"errors"
	"fmt"

	"github.com/Nomadcxx/jellysort/internal/transfer"
)

// ErrorCode is the machine-readable classification persisted with a failed item.
type ErrorCode string

const (
	CodeParseFailure           ErrorCode = "parse_failure"
	CodeClassifierUnavailable  ErrorCode = "classifier_unavailable"
	CodeNoCatalogMatch         ErrorCode = "no_catalog_match"
	CodePathSecurityViolation  ErrorCode = "path_security_violation"
	CodeInvalidStateTransition ErrorCode = "invalid_state_transition"
	CodeFilesystemConflict     ErrorCode = "filesystem_conflict"
	CodeSourceMissing          ErrorCode = "source_missing"
	CodeTransferFailed         ErrorCode = "transfer_failed"
)

var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrBatchTerminal     = errors.New("batch already finished")
	ErrAlreadyRolledBack = errors.New("batch already rolled back")
	ErrBatchBusy         = errors.New("batch is being processed")
)

// ItemError is a per-item failure. It never escapes the item boundary; the
// code and message are stored on the item row instead.
type ItemError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ItemError) Unwrap() error { return e.Err }

func (e *ItemError) ErrorCode() string { return string(e.Code) }

func itemErr(code ErrorCode, msg string, err error) *ItemError {
	return &ItemError{Code: code, Message: msg, Err: err}
}

type coded interface {
	ErrorCode() string
}

// CodeOf classifies err. Errors carrying their own code (ItemError,
// lifecycle.TransitionError, transfer.PathSecurityError) keep it; transfer
// sentinels map onto the matching code and anything else is transfer_failed.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var c coded
	if errors.As(err, &c) {
		return ErrorCode(c.ErrorCode())
	}
	switch {
	case errors.Is(err, transfer.ErrPathSecurity):
		return CodePathSecurityViolation
	case errors.Is(err, transfer.ErrSourceNotFound):
		return CodeSourceMissing
	case errors.Is(err, transfer.ErrDestinationExists):
		return CodeFilesystemConflict
	default:
		return CodeTransferFailed
	}
}
