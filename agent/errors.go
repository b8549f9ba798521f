package agent

import "errors"

var (
	// ErrNoProcessor is returned by NewBaseAgent when constructed without a
	// Processor to delegate to.
	ErrNoProcessor = errors.New("agent: no processor configured")

	// ErrAlreadyRegistered is returned by Registry.Register when an agent id
	// is already taken.
	ErrAlreadyRegistered = errors.New("agent: id already registered")

	// ErrNotFound is returned by Registry.Get for an unknown agent id.
	ErrNotFound = errors.New("agent: id not found")
)
