package utils

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConnection ErrorKind = "connection"
	KindTransfer   ErrorKind = "transfer"
	KindArchive    ErrorKind = "archive"
	KindRemote     ErrorKind = "remote"
)

// DeployError is the single failure type of a deployment. Kind tells which
// stage failed; Code is the stable numeric form reported by the API.
type DeployError struct {
	Kind       ErrorKind `json:"kind"`
	Code       int       `json:"code"`
	Step       string    `json:"step,omitempty"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	ExitStatus int       `json:"exitStatus,omitempty"`
	Err        error     `json:"-"`
}

func (e *DeployError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Details)
	}
	if e.Kind == KindRemote && e.ExitStatus != 0 {
		msg = fmt.Sprintf("%s (exit status %d)", msg, e.ExitStatus)
	}
	return msg
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

func details(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func NewConnectionError(err error) *DeployError {
	return &DeployError{
		Kind:    KindConnection,
		Code:    1001,
		Step:    "connect",
		Message: "ssh connection failed",
		Details: details(err),
		Err:     err,
	}
}

func NewTransferError(err error) *DeployError {
	return &DeployError{
		Kind:    KindTransfer,
		Code:    1002,
		Step:    "upload",
		Message: "archive transfer failed",
		Details: details(err),
		Err:     err,
	}
}

// NewRemoteError reports a remote command that could not run (err != nil) or
// that exited with a non-zero status.
func NewRemoteError(step string, exitStatus int, err error) *DeployError {
	return &DeployError{
		Kind:       KindRemote,
		Code:       2001,
		Step:       step,
		Message:    fmt.Sprintf("remote step %s failed", step),
		Details:    details(err),
		ExitStatus: exitStatus,
		Err:        err,
	}
}

func NewValidationError(field string, value interface{}) *DeployError {
	return &DeployError{
		Kind:    KindValidation,
		Code:    3001,
		Step:    "resolve",
		Message: fmt.Sprintf("invalid %s", field),
		Details: fmt.Sprintf("invalid value: %v", value),
	}
}

// NewValidationErrorf wraps a validation failure that already carries its own
// explanation.
func NewValidationErrorf(field string, err error) *DeployError {
	return &DeployError{
		Kind:    KindValidation,
		Code:    3001,
		Step:    "resolve",
		Message: fmt.Sprintf("invalid %s", field),
		Details: details(err),
		Err:     err,
	}
}

func NewArchiveError(err error) *DeployError {
	return &DeployError{
		Kind:    KindArchive,
		Code:    5001,
		Step:    "archive",
		Message: "failed to archive project",
		Details: details(err),
		Err:     err,
	}
}

// AsDeployError returns the DeployError in err's chain, if any.
func AsDeployError(err error) (*DeployError, bool) {
	var de *DeployError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// ExitCode maps a deployment outcome to the process exit status. Every failure
// kind terminates with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
