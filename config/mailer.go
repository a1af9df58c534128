package config

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"

	"github.com/wneessen/go-mail"
)

// Mailer sends a single plain-text message. Satisfied by the SMTP client
// below; the outbox dispatcher takes the interface so tests can fake it.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

var mailer Mailer

func GetMailer() Mailer {
	return mailer
}

type smtpMailer struct {
	client *mail.Client
	from   string
}

func (m *smtpMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return m.client.DialAndSendWithContext(ctx, msg)
}

// ConnectMailer builds the SMTP client from env. Email is best-effort:
// when SMTP_HOST is unset the mailer stays nil and the outbox dispatcher
// leaves records pending.
//
// Env:
// - SMTP_HOST, SMTP_PORT (default 587)
// - SMTP_USERNAME, SMTP_PASSWORD
// - SMTP_FROM (default no-reply@gasbygas.lk)
func ConnectMailer() {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		log.Printf("SMTP_HOST not set; email delivery disabled")
		return
	}

	from := strings.TrimSpace(os.Getenv("SMTP_FROM"))
	if from == "" {
		from = "no-reply@gasbygas.lk"
	}

	opts := []mail.Option{
		mail.WithPort(intFromEnv("SMTP_PORT", 587)),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	username := strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	if username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(username),
			mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		)
	}

	client, err := mail.NewClient(host, opts...)
	if err != nil {
		log.Printf("failed to build smtp client: %v; email delivery disabled", err)
		return
	}
	mailer = &smtpMailer{client: client, from: from}
	log.Printf("smtp mailer ready (host=%s)", host)
}

// SetMailer overrides the process mailer (tests).
func SetMailer(m Mailer) {
	mailer = m
}

var ErrMailerNotConfigured = errors.New("mailer not configured")
