package mail

import "log/slog"

// Message is a rendered transactional mail ready for delivery.
type Message struct {
	To      []string
	Subject string
	Body    string
	IsHTML  bool
}

type MailSender interface {
	Send(message *Message) error
}

// LogMailSender writes mail to the log instead of delivering it. Used when
// no SMTP backend is configured, typically in development.
type LogMailSender struct{}

func (s *LogMailSender) Send(message *Message) error {
	slog.Info("Outgoing mail", "to", message.To, "subject", message.Subject)
	slog.Debug("Mail body", "body", message.Body)
	return nil
}
