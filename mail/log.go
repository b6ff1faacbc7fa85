package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to a logger instead of delivering them. It is
// meant for development, where the OTP has to be read from the log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender. A nil logger means slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With("component", "mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.logger.InfoContext(ctx, "mail not delivered, log sender in use",
		"to", msg.To,
		"subject", msg.Subject,
		"html", msg.HTML,
	)
	return nil
}
