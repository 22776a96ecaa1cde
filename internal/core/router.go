package core

import (
	"context"

	"engine/internal/bus"
	"engine/internal/errors"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// Processor handles one kind of message.
type Processor interface {
	Process(ctx context.Context, msg bus.Message) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, msg bus.Message) error

func (f ProcessorFunc) Process(ctx context.Context, msg bus.Message) error {
	return f(ctx, msg)
}

// Router maps each message type to exactly one processor.
type Router struct {
	routes map[schema.MessageType]Processor
}

func NewRouter() *Router {
	return &Router{routes: make(map[schema.MessageType]Processor)}
}

// Register binds t to p. A type can only be bound once.
func (r *Router) Register(t schema.MessageType, p Processor) error {
	if p == nil {
		return errors.Wrapf(exception.ErrNilProcessor, "type %s", t)
	}
	if _, ok := r.routes[t]; ok {
		return errors.Wrapf(exception.ErrRouteConflict, "type %s", t)
	}
	r.routes[t] = p
	return nil
}

// Route returns the processor bound to t.
func (r *Router) Route(t schema.MessageType) (Processor, bool) {
	p, ok := r.routes[t]
	return p, ok
}

// Len returns the number of routed types.
func (r *Router) Len() int {
	return len(r.routes)
}
