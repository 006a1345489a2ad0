package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers messages through the SendGrid v3 API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender returns a Sender using apiKey.
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send posts m to SendGrid. Any 4xx/5xx response is an error.
func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(m.ToName, m.ToEmail)
	message := mail.NewSingleEmail(from, m.Subject, to, m.Text, m.HTML)
	message.SetHeader("X-Notification-Kind", m.Kind)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send %s email: %w", m.Kind, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogSender writes messages to the log instead of sending them. Used when no mail provider is configured.
type LogSender struct {
	log zerolog.Logger
}

// NewLogSender returns a Sender that logs each message at info level.
func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "notification").Logger()}
}

// Send logs the message envelope. The body is omitted because invitation mail carries a live token.
func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.log.Info().Str("kind", m.Kind).Str("to", m.ToEmail).Str("subject", m.Subject).Msg("notification (mail delivery disabled)")
	return nil
}

// NewSender picks SendGrid when apiKey is set and the log sender otherwise.
func NewSender(apiKey, fromEmail, fromName string, log zerolog.Logger) Sender {
	if apiKey == "" {
		return NewLogSender(log)
	}
	return NewSendGridSender(apiKey, fromEmail, fromName)
}
