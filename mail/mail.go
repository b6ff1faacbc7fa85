package mail

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned by senders for a message without a To address.
var ErrNoRecipient = errors.New("mail: message has no recipient")

// Message is one rendered HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
