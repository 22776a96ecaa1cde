package exception

import "errors"

// Frame errors
var (
	ErrFrameTooLarge = errors.New("frame: payload too large")
)
