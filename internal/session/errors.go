package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when the session ID resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotActive is returned when an operation targets a session
	// that has already been committed or abandoned.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrDialogueService wraps failures of the underlying dialogue provider.
	ErrDialogueService = errors.New("dialogue service unavailable")

	// ErrUnresolvedConflict is returned when commit is blocked by an
	// unresolved high-severity warning on a required field.
	ErrUnresolvedConflict = errors.New("unresolved conflict on a required field")
)

// MissingFieldsError reports the required fields a commit attempt lacked.
type MissingFieldsError struct {
	Missing []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("required fields missing: %s", strings.Join(e.Missing, ", "))
}
