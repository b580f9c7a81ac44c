package badge

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by both storage engines. Callers match with
// errors.Is; engine-specific failures are classified into one of these
// categories before leaving the store packages.
var (
	// ErrValidation marks malformed input: blank identifiers, bad config
	// parameter names or values, empty batch input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing target or referenced parent entity.
	ErrNotFound = errors.New("not found")

	// ErrConnection marks an unreachable engine after retries are exhausted.
	ErrConnection = errors.New("connection failed")

	// ErrConstraint marks an engine-level constraint rejection that the
	// local referential check did not catch (e.g. a unique violation).
	ErrConstraint = errors.New("constraint violated")

	// ErrEngine marks any other underlying engine failure.
	ErrEngine = errors.New("engine error")
)

// ConstraintError names the field that violated an engine constraint.
type ConstraintError struct {
	Field string
	Err   error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violated on %s: %v", e.Field, e.Err)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraint }

// Validationf builds an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// NotFoundf builds an ErrNotFound naming the missing entity and id.
func NotFoundf(entity, id string) error {
	return fmt.Errorf("%s %q does not exist: %w", entity, id, ErrNotFound)
}

// OpError attaches operation context to an engine failure so callers can
// diagnose without re-running the operation.
type OpError struct {
	Op     string
	Entity string
	ID     string
	Err    error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
