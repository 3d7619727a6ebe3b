package rules

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the rule store and lifecycle controller.
var (
	// ErrValidation is the parent of all intent validation failures.
	ErrValidation = errors.New("invalid rule declaration")
	// ErrInvalidApps means no declared app name resolved to a known application ID.
	ErrInvalidApps = fmt.Errorf("%w: no valid apps selected", ErrValidation)
	// ErrMissingField means a field required by the rule type is absent.
	ErrMissingField = fmt.Errorf("%w: missing required field", ErrValidation)

	// ErrDuplicateID means a rule with the same id already exists.
	ErrDuplicateID = errors.New("rule id already exists")
	// ErrNotFound means no rule with the given id exists.
	ErrNotFound = errors.New("rule not found")

	// ErrNotAuthenticated means there is no controller session to call with.
	ErrNotAuthenticated = errors.New("not authenticated with controller")
)

// RemoteErrorKind classifies a failed controller call.
type RemoteErrorKind string

const (
	RemoteClientError RemoteErrorKind = "client_error"
	RemoteServerError RemoteErrorKind = "server_error"
	RemoteTransport   RemoteErrorKind = "transport"
	RemoteTimeout     RemoteErrorKind = "timeout"
)

// RemoteError is a failure reported by (or on the way to) the network
// controller. Status is the HTTP status code when one was received.
type RemoteError struct {
	Kind    RemoteErrorKind
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("controller rejected request (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("controller call failed (%s): %s", e.Kind, e.Message)
}

// PersistenceError reports that an in-memory mutation succeeded but could not
// be written to durable storage. The in-memory state is kept; memory and disk
// may diverge until the next successful save.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist rules after %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
