package store

import "fmt"

// NotFoundError indicates the resource was not found (or user lacks access).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness/conflict violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError indicates the caller is not allowed to act on the resource.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}

// InvalidUsersError indicates a conversation mutation referenced users that
// do not exist. IDs lists the offending user IDs.
type InvalidUsersError struct {
	IDs []string
}

func (e *InvalidUsersError) Error() string {
	return fmt.Sprintf("invalid users: %v", e.IDs)
}

// InvalidReferenceError indicates a write that named a conversation or user
// that does not exist. Distinct from NotFoundError: the missing resource is
// something the request referred to, not the thing being fetched.
type InvalidReferenceError struct {
	Resource string
	ID       string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference: %s", e.Resource, e.ID)
}

// InvalidOperationError indicates an operation that is well-formed but not
// permitted in the current state, such as removing the last member by an
// admin removal, or editing a deleted message.
type InvalidOperationError struct {
	Message string
}

func (e *InvalidOperationError) Error() string {
	return e.Message
}

// NoOpError indicates a mutation that would change nothing, such as adding a
// user who is already a member.
type NoOpError struct {
	Message string
}

func (e *NoOpError) Error() string {
	return e.Message
}

// AlreadyDeletedError indicates a delete of a message that is already in the
// deleted state.
type AlreadyDeletedError struct {
	ID string
}

func (e *AlreadyDeletedError) Error() string {
	return fmt.Sprintf("message already deleted: %s", e.ID)
}

// InvalidRangeError indicates pagination parameters outside their allowed
// ranges.
type InvalidRangeError struct {
	Field   string
	Message string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
