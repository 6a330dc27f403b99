package mail

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// Sender delivers a message to a single recipient, best-effort. A non-nil
// error means delivery failed and must be surfaced to the caller.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPSender sends mail through a single SMTP server
type SMTPSender struct {
	addr     string // host:port
	username string
	password string
	from     string
}

// NewSMTPSender creates a sender for the given SMTP server. addr is host:port.
func NewSMTPSender(addr, username, password, from string) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers the message, bounded by the context deadline.
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	host, _, err := net.SplitHostPort(s.addr)
	if err != nil {
		return fmt.Errorf("invalid smtp addr %q: %w", s.addr, err)
	}

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, host)
	}

	done := make(chan error, 1)
	go func() {
		done <- e.Send(s.addr, auth)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail: %w", ctx.Err())
	}
}

// LogSender is a dev-mode sender that only logs that a delivery happened.
// It never logs the message body, so verification codes stay out of logs.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("mail (dev mode): to=%s subject=%q", BlurEmail(to), subject)
	return nil
}

// BlurEmail reduces an email address to its first rune plus domain for logging.
func BlurEmail(addr string) string {
	items := strings.Split(addr, "@")
	if len(items) < 2 || len(items[0]) < 1 {
		return "****@**"
	}
	return string([]rune(items[0])[0]) + "****@" + strings.Join(items[1:], "")
}
