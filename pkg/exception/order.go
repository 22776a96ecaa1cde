package exception

import "errors"

var (
	ErrOrderNilMatcher          = errors.New("order: nil matcher")
	ErrOrderInvalidWorkerConfig = errors.New("order: invalid worker config")
	ErrOrderQueueFull           = errors.New("order: queue full")
)
