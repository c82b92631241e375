// Package mq carries background email jobs between the request path and
// the mail dispatcher. Requests publish a job and return immediately;
// delivery happens on a subscriber running outside the request lifetime.
package mq

import "context"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// Queue wraps a backend with a stable API.
type Queue struct {
	backend Backend
}

// New constructs a Queue wrapper for the provided backend.
func New(backend Backend) *Queue {
	return &Queue{backend: backend}
}

// Publish sends a message to the named channel.
func (q *Queue) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return q.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel.
func (q *Queue) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return q.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (q *Queue) Close() error {
	return q.backend.Close()
}
