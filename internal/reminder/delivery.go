package reminder

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/metalagman/taskflow/internal/apperr"
	"github.com/rs/zerolog/log"
)

// Sender delivers a reminder message. Any error is treated as a failed
// attempt and the reminder is retried on the next scan.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, subject, body string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// LogSender writes reminders to the application log instead of sending them.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, to, subject, body string) error {
	log.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("reminder delivered")
	return nil
}

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers reminders as plain-text email.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}
}

// Send implements Sender.
func (s *SMTPSender) Send(_ context.Context, to, subject, body string) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, buildMessage(s.cfg.From, to, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w: %w", to, apperr.ErrDeliveryFailed, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

// Directory resolves a user id to a delivery address.
type Directory interface {
	Contact(ctx context.Context, userID string) (string, error)
}

// StaticDirectory maps user ids to addresses. User ids that already look like
// email addresses resolve to themselves.
type StaticDirectory map[string]string

// Contact implements Directory.
func (d StaticDirectory) Contact(_ context.Context, userID string) (string, error) {
	if addr, ok := d[userID]; ok && addr != "" {
		return addr, nil
	}
	if strings.Contains(userID, "@") {
		return userID, nil
	}
	return "", apperr.NotFound("contact for user", userID)
}
