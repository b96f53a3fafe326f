package workflow

import (
	"errors"
	"fmt"
)

// Code classifies a workflow failure.
type Code string

const (
	// CodeSchemaInvalid means a manifest or inventory failed validation.
	CodeSchemaInvalid Code = "SCHEMA_INVALID"

	// CodeVaultFailed means the secrets vault could not be read.
	CodeVaultFailed Code = "VAULT_FAILED"

	// CodeUnresolved means reference tokens survived every resolution pass.
	CodeUnresolved Code = "UNRESOLVED_REFERENCE"

	// CodePolicyDenied means the policy gate blocked the run.
	CodePolicyDenied Code = "POLICY_DENIED"

	// CodeToolFailed means the external tool exited non-zero.
	CodeToolFailed Code = "TOOL_FAILED"

	// CodeCommitFailed means the apply succeeded but the reservation deltas
	// could not be written back to the inventory.
	CodeCommitFailed Code = "COMMIT_FAILED"
)

// Error is a classified workflow failure. Op names the stage that failed.
type Error struct {
	Code Code
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Op)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the classification code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// IsPolicyDenied reports whether err is a policy gate rejection.
func IsPolicyDenied(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodePolicyDenied
}

// IsUnresolved reports whether err is a leftover-token failure.
func IsUnresolved(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == CodeUnresolved
}
