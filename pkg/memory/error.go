package memory

import "errors"

var (
	// ErrConfirmationRequired is returned by destructive operations called
	// without an explicit confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")

	// ErrNotConfigured is returned when an operation needs a collaborator
	// (migration engine, summary pipeline, session source) that the service
	// was built without.
	ErrNotConfigured = errors.New("memory service not configured")
)
