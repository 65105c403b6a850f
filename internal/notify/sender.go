package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"cachepledge.org/internal/obs"
)

// Message is one outgoing email.
type Message struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message synchronously. Only outbox workers call it.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// ErrNotConfigured is returned by an SMTPSender with no host or user.
var ErrNotConfigured = errors.New("smtp not configured")

// SMTPSender submits mail over authenticated SMTP.
type SMTPSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender defaults the port to 587.
func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	if port == 0 {
		port = 587
	}
	return &SMTPSender{Host: host, Port: port, User: user, Password: pass, From: from, send: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if s == nil || s.Host == "" || s.User == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.User, s.Password, s.Host)
	return s.send(addr, auth, s.From, []string{m.To}, s.format(m))
}

func (s *SMTPSender) format(m Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.From + "\r\n")
	b.WriteString("To: " + m.To + "\r\n")
	b.WriteString("Subject: " + m.Subject + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(m.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogSender writes messages to the structured log instead of sending them.
// It is the sender when SMTP is not configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	obs.Info("email_logged", map[string]any{
		"kind":    m.Kind,
		"to":      m.To,
		"subject": m.Subject,
	})
	return nil
}
