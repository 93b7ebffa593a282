package engine

import (
	"errors"
	"fmt"
)

// RunError represents an error detected during an engine run.
//
// Run errors include:
//   - Duplicate conflict: a canonical deal registered in two duplicate groups
//   - Config invalid: adapter or mapping configuration is unusable
//   - Upload failed: the remote CRM rejected a batch
//
// RunError includes structured fields for diagnostics.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run, when known.
	RunID string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeDuplicateConflict indicates contradictory duplicate groups.
	// This violates a run invariant and aborts processing.
	ErrCodeDuplicateConflict RunErrorCode = "DUPLICATE_CONFLICT"

	// ErrCodeConfigInvalid indicates a configuration defect (missing
	// enum mapping, conflicting stage ids, unparsable adapter config).
	ErrCodeConfigInvalid RunErrorCode = "CONFIG_INVALID"

	// ErrCodeUploadFailed indicates the remote CRM rejected an upload.
	ErrCodeUploadFailed RunErrorCode = "UPLOAD_FAILED"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *RunError) Unwrap() error { return e.Err }

// IsFatal returns true if the error is a run-aborting invariant
// violation. Uses errors.As to handle wrapped errors.
func IsFatal(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDuplicateConflict
	}
	return false
}

// IsConfigError returns true if the error is a configuration defect.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeConfigInvalid
	}
	return false
}

// NewDuplicateConflictError wraps a duplicate-registration violation.
func NewDuplicateConflictError(runID string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeDuplicateConflict,
		Message: "contradictory duplicate-deal groups",
		RunID:   runID,
		Err:     err,
	}
}

// NewConfigError wraps a configuration defect.
func NewConfigError(err error) *RunError {
	return &RunError{
		Code:    ErrCodeConfigInvalid,
		Message: err.Error(),
		Err:     err,
	}
}

// NewUploadError wraps a failed remote upload.
func NewUploadError(runID string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeUploadFailed,
		Message: err.Error(),
		RunID:   runID,
		Err:     err,
	}
}
