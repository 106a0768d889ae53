package sandbox

import "errors"

var (
	// ErrManagerClosed indicates session creation after Close.
	ErrManagerClosed = errors.New("sandbox: manager closed")

	// ErrSessionClosed indicates operations were attempted on a closed session.
	ErrSessionClosed = errors.New("sandbox: session closed")

	// ErrCommandEmpty is returned when Exec is invoked without a command.
	ErrCommandEmpty = errors.New("sandbox: command arguments required")
)
