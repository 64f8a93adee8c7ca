package visa

import "errors"

// Session errors
var (
	ErrConnection = errors.New("failed to connect to instrument")
	ErrTransport  = errors.New("instrument communication failed")
	ErrTimeout    = errors.New("timed out waiting for instrument response")
	ErrClosed     = errors.New("session is closed")
)

// Resource string errors
var (
	ErrBadResource = errors.New("invalid resource string")
)
