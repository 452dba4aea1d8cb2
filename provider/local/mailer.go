package local

import (
	"context"

	"github.com/keysai/go-auth"
)

// MessageKind tells a Mailer which template to use.
type MessageKind string

const (
	MessageConfirmEmail  MessageKind = "confirm_email"
	MessagePasswordReset MessageKind = "password_reset"
)

// Message is an outgoing account email.
type Message struct {
	Kind MessageKind
	To   string
	Link string
}

// Mailer delivers account emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type logMailer struct {
	logger auth.Logger
}

func (m logMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email notification", "kind", msg.Kind, "to", msg.To, "link", msg.Link)
	return nil
}
