package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape               = errors.New("invalid object shape")
	ErrInsufficientShards         = errors.New("insufficient shards available for reconstruction")
	ErrRecoveryVerificationFailed = errors.New("recovered shards failed parity verification")
	ErrShapeMismatch              = errors.New("shard shapes do not match")
	ErrNotFound                   = errors.New("not found")
	ErrInvalidKey                 = errors.New("invalid object or node name")
	ErrUnsupportedMode            = errors.New("unsupported parity mode")
	ErrAlreadyExists              = errors.New("already exists")
	ErrStopped                    = errors.New("recovery orchestrator is stopped")
)

// CollaboratorError wraps a failure returned by the cluster or metrics boundary.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Collaborator wraps err as a CollaboratorError for op. A nil err stays nil.
func Collaborator(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CollaboratorError{Op: op, Err: err}
}

// NotFoundError generates a formatted not-found error for a resource.
func NotFoundError(resource string) error {
	return fmt.Errorf("%s: %w", resource, ErrNotFound)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("the %s setting must be set", config)
}
