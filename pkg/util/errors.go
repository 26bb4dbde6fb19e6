// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for administrative failures. Every typed error below
// unwraps to exactly one of these.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrIncompatibleMember = errors.New("incompatible LAG member")
	ErrVLANConflict       = errors.New("VLAN membership conflict")
	ErrValidationFailed   = errors.New("validation failed")
	ErrNoActiveMember     = errors.New("no active LAG member")
	ErrNotConnected       = errors.New("not connected")
	ErrPermissionDenied   = errors.New("permission denied")
)

// NotFoundError reports an unknown port, LAG or VLAN.
type NotFoundError struct {
	Kind string // "port", "lag", "vlan"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// DuplicateIDError reports an attempt to create a resource that already exists.
type DuplicateIDError struct {
	Kind string
	ID   string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Kind, e.ID)
}

func (e *DuplicateIDError) Unwrap() error {
	return ErrAlreadyExists
}

// NewDuplicateIDError creates a duplicate-id error
func NewDuplicateIDError(kind, id string) *DuplicateIDError {
	return &DuplicateIDError{Kind: kind, ID: id}
}

// IncompatibleMemberError reports a port that cannot join a LAG.
type IncompatibleMemberError struct {
	LAG    string
	Port   string
	Reason string
}

func (e *IncompatibleMemberError) Error() string {
	return fmt.Sprintf("port %s cannot join %s: %s", e.Port, e.LAG, e.Reason)
}

func (e *IncompatibleMemberError) Unwrap() error {
	return ErrIncompatibleMember
}

// NewIncompatibleMemberError creates an incompatible-member error
func NewIncompatibleMemberError(lag, port, reason string) *IncompatibleMemberError {
	return &IncompatibleMemberError{LAG: lag, Port: port, Reason: reason}
}

// VLANConflictError reports a violation of the one-untagged-VLAN rule.
type VLANConflictError struct {
	Target   string
	VLAN     int
	Existing int // untagged VLAN already carried by Target
}

func (e *VLANConflictError) Error() string {
	return fmt.Sprintf("%s cannot be untagged in VLAN %d: already untagged in VLAN %d",
		e.Target, e.VLAN, e.Existing)
}

func (e *VLANConflictError) Unwrap() error {
	return ErrVLANConflict
}

// NewVLANConflictError creates a VLAN conflict error
func NewVLANConflictError(target string, vlan, existing int) *VLANConflictError {
	return &VLANConflictError{Target: target, VLAN: vlan, Existing: existing}
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}

// ErrorKind returns a short label for the administrative error class of err,
// used by the console and the SSH exec exit status. Unknown errors map to "error".
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrAlreadyExists):
		return "duplicate-id"
	case errors.Is(err, ErrIncompatibleMember):
		return "incompatible-member"
	case errors.Is(err, ErrVLANConflict):
		return "vlan-conflict"
	case errors.Is(err, ErrValidationFailed):
		return "invalid"
	case errors.Is(err, ErrPermissionDenied):
		return "permission-denied"
	default:
		return "error"
	}
}
