// Package events defines the event stream ports. Processing outcomes are
// published for downstream audit and KPI consumers; publishing is
// best-effort and never blocks a pipeline decision.
package events

import "context"

// Publisher sends a payload to a subject on the event stream.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Handler processes one delivered event. A non-nil error triggers redelivery.
type Handler func(subject string, data []byte) error

// Subscriber attaches a handler to a subject pattern. The returned function
// stops delivery.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
}
