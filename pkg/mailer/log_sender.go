package mailer

import (
	"context"
	"log/slog"
	"sync"
)

// LogSender records outbound email instead of delivering it. Development
// deployments log the message; tests inspect Sent.
type LogSender struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []SendEmailParams
}

// NewLogSender creates a sender that logs and records every message.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := validateParams(params); err != nil {
		return err
	}

	s.mu.Lock()
	s.sent = append(s.sent, params)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "email recorded",
		slog.String("to", params.SendTo),
		slog.String("subject", params.Subject),
		slog.String("tag", params.Tag))
	return nil
}

// Sent returns a copy of everything recorded so far.
func (s *LogSender) Sent() []SendEmailParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendEmailParams, len(s.sent))
	copy(out, s.sent)
	return out
}

// Reset clears the recorded messages.
func (s *LogSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
