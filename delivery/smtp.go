// Package delivery sends email change challenges to the candidate address.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/open-rails/emailchange/core"
)

// SMTPConfig is read from SMTP_* variables by the dev server.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" envDefault:"no-reply@localhost"`
	AppName  string `env:"SMTP_APP_NAME" envDefault:"Skill Exchange"`
}

// SMTP delivers challenges as plain text mail.
type SMTP struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTP) Deliver(ctx context.Context, to string, p core.Payload) error {
	msg := s.message(to, p)
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	// net/smtp has no context support; run the send and abandon it on cancel.
	done := make(chan error, 1)
	go func() { done <- s.send(addr, auth, s.cfg.From, []string{to}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTP) message(to string, p core.Payload) []byte {
	var body strings.Builder
	fmt.Fprintf(&body, "Someone asked to use this address for a %s account.\r\n\r\n", s.cfg.AppName)
	if p.Code != "" {
		fmt.Fprintf(&body, "Your confirmation code is: %s\r\n", p.Code)
	}
	if p.VerificationURL != "" {
		fmt.Fprintf(&body, "Confirm the change by opening:\r\n%s\r\n", p.VerificationURL)
	}
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(&body, "\r\nThis expires at %s.\r\n", p.ExpiresAt.UTC().Format(time.RFC1123))
	}
	body.WriteString("\r\nIf you did not request this, you can ignore this message.\r\n")

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Confirm your new %s email address\r\n", s.cfg.AppName)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body.String())
	return b.Bytes()
}
