package exception

import "github.com/yanun0323/errors"

// Relay errors
var (
	// ErrBindFailed is returned when the relay cannot bind its socket path.
	ErrBindFailed = errors.New("relay: bind failed")

	// ErrNilLogic is returned when a relay is constructed without domain logic.
	ErrNilLogic = errors.New("relay: nil domain logic")

	// ErrAlreadyStarted is returned when Start is called on a running relay.
	ErrAlreadyStarted = errors.New("relay: already started")

	// ErrBadConfig is returned when runtime configuration fails validation.
	ErrBadConfig = errors.New("relay: invalid configuration")
)
