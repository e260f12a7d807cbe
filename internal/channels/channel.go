// Package channels defines the transport abstraction used by the
// dispatcher. A Channel validates its configuration once at startup and
// sends messages to recipients; send failures carry a transient/permanent
// classification that drives the dispatcher's retry policy. New channel
// kinds plug into the registry without touching the dispatcher.
package channels

import (
	"context"
	"errors"
	"fmt"

	"response-service/internal/models"
)

// Channel is the uniform transport contract.
type Channel interface {
	// Name identifies the channel kind ("inapp", "telegram", "email").
	Name() string
	// Validate checks the channel's configuration. Called once at startup;
	// a channel that fails validation is not registered.
	Validate() error
	// Send delivers one message to one recipient. Errors should be wrapped
	// with Transient or Permanent so the dispatcher can classify them.
	Send(ctx context.Context, recipientID int, msg models.Message) error
}

// SendError carries the retry classification of a delivery failure.
type SendError struct {
	Err       error
	Transient bool
}

func (e *SendError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s send error: %v", kind, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Transient marks an error as retryable (network, timeout, rate limit).
func Transient(err error) error {
	return &SendError{Err: err, Transient: true}
}

// Permanent marks an error as not worth retrying (bad recipient config).
func Permanent(err error) error {
	return &SendError{Err: err, Transient: false}
}

// IsTransient reports whether an error should be retried. Unclassified
// errors are treated as transient so a missing wrap never silently drops a
// notification.
func IsTransient(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Transient
	}
	return true
}

// Registry holds the validated channels by name.
type Registry struct {
	channels map[string]Channel
	names    []string
}

// NewRegistry validates and registers each channel. A channel failing
// validation aborts startup rather than silently dropping a transport.
func NewRegistry(chs ...Channel) (*Registry, error) {
	r := &Registry{channels: make(map[string]Channel)}
	for _, ch := range chs {
		if err := ch.Validate(); err != nil {
			return nil, fmt.Errorf("channel %s failed validation: %w", ch.Name(), err)
		}
		if _, dup := r.channels[ch.Name()]; dup {
			return nil, fmt.Errorf("duplicate channel %s", ch.Name())
		}
		r.channels[ch.Name()] = ch
		r.names = append(r.names, ch.Name())
	}
	return r, nil
}

// Get returns the channel registered under name.
func (r *Registry) Get(name string) (Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns the registered channel names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
