package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Sender delivers login links to users.
type Sender interface {
	SendLoginLink(ctx context.Context, email, link string) error
}

// SMTPConfig configures outbound mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers login links over SMTP.
type SMTPSender struct {
	cfg SMTPConfig

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender builds a sender for the given mail server.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

// SendLoginLink mails the login link to email.
func (s *SMTPSender) SendLoginLink(ctx context.Context, email, link string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var a smtp.Auth
	if s.cfg.Username != "" {
		a = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	msg := composeLoginEmail(s.cfg.From, email, link)
	if err := s.send(addr, a, s.cfg.From, []string{email}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}
	return nil
}

func composeLoginEmail(from, to, link string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your login link\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Click the link below to sign in. It expires shortly and works once.\r\n\r\n%s\r\n", link)
	return []byte(b.String())
}

// LogSender writes login links to the log instead of sending mail.
// Development use only.
type LogSender struct {
	Logger *slog.Logger
}

// SendLoginLink logs the link at info level.
func (s *LogSender) SendLoginLink(ctx context.Context, email, link string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("login link issued", "email", email, "link", link)
	return nil
}
