package identity

import (
	"context"
	"strings"
)

// Channel is the delivery channel of a message.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is an outbound notification.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
}

// MessageSender delivers messages. Delivery is fire-and-forget, failures
// are not retried.
type MessageSender interface {
	Send(ctx context.Context, channel Channel, msg Message) error
}

// MessageSenderFunc adapts a function to the MessageSender interface.
type MessageSenderFunc func(ctx context.Context, channel Channel, msg Message) error

// Send implements MessageSender.
func (f MessageSenderFunc) Send(ctx context.Context, channel Channel, msg Message) error {
	if f == nil {
		return nil
	}
	return f(ctx, channel, msg)
}

// LogSender writes messages to a Logger instead of delivering them.
type LogSender struct {
	logger Logger
}

func NewLogSender(logger Logger) *LogSender {
	return &LogSender{logger: normalizeLogger(logger)}
}

func (s *LogSender) Send(ctx context.Context, channel Channel, msg Message) error {
	s.logger.Info("message",
		"channel", string(channel),
		"to", strings.Join(msg.Recipients, ","),
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

type notification struct {
	subject  string
	template string
}

// notificationFor resolves subject and template of a purpose on a channel.
func notificationFor(kind PurposeKind, contact ContactType) (notification, error) {
	var prefix string
	switch contact {
	case ContactEmail:
		prefix = "email/"
	case ContactPhoneNumber:
		prefix = "text/"
	default:
		return notification{}, ErrUnsupportedContactType
	}

	switch kind {
	case PurposeConfirmContact:
		switch contact {
		case ContactEmail:
			return notification{subject: "Confirm Your Email Address", template: prefix + "confirm_account"}, nil
		default:
			return notification{subject: "Confirm Your Phone Number", template: prefix + "confirm_account"}, nil
		}
	case PurposeChangeContact:
		switch contact {
		case ContactEmail:
			return notification{subject: "Change Your Email Address", template: prefix + "change_account"}, nil
		default:
			return notification{subject: "Change Your Phone Number", template: prefix + "change_account"}, nil
		}
	case PurposeResetPassword:
		return notification{subject: "Reset Your Password", template: prefix + "reset_password"}, nil
	default:
		return notification{}, ErrUnsupportedContactType
	}
}
