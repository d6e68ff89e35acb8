package governance

import (
	"errors"
	"fmt"
)

// Sentinel errors for the governance domain. The transport layer maps
// these to status codes; services wrap them with context via fmt.Errorf
// and %w so errors.Is keeps working.
var (
	// ErrUnauthorized means the caller lacks the role or capability the
	// operation requires. It is always checked before any other
	// validation so unprivileged callers learn nothing about state.
	ErrUnauthorized = errors.New("caller lacks the required role or capability")

	// ErrNotFound means a referenced member or request does not exist.
	ErrNotFound = errors.New("referenced record does not exist")

	// ErrConflict means a pending request already exists for the same
	// (actor, permission key) pair.
	ErrConflict = errors.New("a pending request already exists")

	// ErrInvalidState means the operation is not valid in the record's
	// current state, e.g. reviewing an already-resolved request.
	ErrInvalidState = errors.New("operation not valid in current state")
)

// Rule identifies which batch role-transition invariant was violated.
type Rule string

const (
	RuleSuperAdminCapExceeded   Rule = "super_admin_cap_exceeded"
	RuleLastSuperAdminProtected Rule = "last_super_admin_protected"
	RuleImmutableRole           Rule = "immutable_role"
	RuleInvalidPromotionPath    Rule = "invalid_promotion_path"
)

// RuleViolationError reports a failed role-transition invariant. It is
// part of the ErrInvalidState family: errors.Is(err, ErrInvalidState)
// holds for every rule violation, and the rule name tells the caller
// which precondition rejected the batch.
type RuleViolationError struct {
	Rule   Rule
	Detail string
}

func (e *RuleViolationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("role transition rejected: %s", e.Rule)
	}
	return fmt.Sprintf("role transition rejected: %s: %s", e.Rule, e.Detail)
}

// Is makes rule violations members of the ErrInvalidState family.
func (e *RuleViolationError) Is(target error) bool {
	return target == ErrInvalidState
}

// NewRuleViolation builds a RuleViolationError with a formatted detail.
func NewRuleViolation(rule Rule, format string, args ...interface{}) error {
	return &RuleViolationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// StorageError wraps a failure of the persistent store. Unlike domain
// errors it is safe to retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storagef wraps err as a StorageError for operation op. Returns nil if
// err is nil so call sites can wrap unconditionally.
func Storagef(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsRetryable reports whether err is an infrastructure failure that the
// caller may retry. Domain errors are never retryable.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
