package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/meyoo/platform/pkg/config"
)

// Purpose selects the message wrapped around a verification code.
type Purpose string

const (
	PurposeInvite    Purpose = "invite"
	PurposeLoginCode Purpose = "login_code"
)

// Sender delivers a short-lived verification code to an email address.
type Sender interface {
	Send(ctx context.Context, email, code string, purpose Purpose) error
}

// SMTPSender delivers codes over plain SMTP.
type SMTPSender struct {
	cfg *config.SMTPConfig
}

func NewSMTPSender(cfg *config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, email, code string, purpose Purpose) error {
	subject := "Your Meyoo verification code"
	intro := "Sign in to Meyoo"
	if purpose == PurposeInvite {
		subject = "You've been invited to Meyoo"
		intro = "You've been invited to join a team on Meyoo"
	}

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s.\r\n\r\nYour verification code is: %s\r\n\r\nThis code will expire in 10 minutes. If you didn't request this code, you can safely ignore this email.\r\n",
		s.cfg.From, email, subject, intro, code,
	)

	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	}
	if err := smtp.SendMail(s.cfg.Addr(), auth, s.cfg.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("sending %s email: %w", purpose, err)
	}
	return nil
}

// LogSender writes codes to the log instead of delivering them. Used in
// development when SMTP is not configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, email, code string, purpose Purpose) error {
	s.logger.Info("verification code issued",
		"email", email,
		"code", code,
		"purpose", string(purpose),
	)
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
