package exception

import "errors"

// Dispatch errors
var (
	ErrUnroutableType = errors.New("dispatch: unroutable message type")
	ErrRouteConflict  = errors.New("dispatch: message type already routed")
	ErrNilProcessor   = errors.New("dispatch: nil processor")
	ErrProcessorPanic = errors.New("dispatch: processor panicked")
)

var (
	ErrDispatcherStopped = errors.New("dispatch: dispatcher stopped")
)
