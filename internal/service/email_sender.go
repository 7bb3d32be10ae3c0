package service

import (
	"context"
	"log/slog"
)

// LogEmailSender writes outgoing messages to the log instead of delivering
// them. It is meant for development; tokens end up in the log output.
type LogEmailSender struct {
	logger *slog.Logger
}

func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	s.logger.InfoContext(ctx, "email dispatched", "template", "verification", "to", to, "token", token)
	return nil
}

func (s *LogEmailSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	s.logger.InfoContext(ctx, "email dispatched", "template", "password_reset", "to", to, "token", token)
	return nil
}

func (s *LogEmailSender) SendTwoFactorEmail(ctx context.Context, to, code string) error {
	s.logger.InfoContext(ctx, "email dispatched", "template", "two_factor", "to", to, "code", code)
	return nil
}
