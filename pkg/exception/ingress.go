package exception

import "errors"

// Ingress errors
var (
	ErrIngressNilQueue = errors.New("ingress: nil queue")
	ErrIngressStarted  = errors.New("ingress: already serving")
)
