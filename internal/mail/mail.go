// Package mail delivers account verification emails.
package mail

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	gomail "github.com/wneessen/go-mail"
)

// Mailer sends verification links to account owners.
type Mailer interface {
	SendVerification(ctx context.Context, to, link string) error
}

// New returns an SMTP mailer when addr is set, otherwise a mailer that
// only logs the link.
func New(logger zerolog.Logger, addr, from, username, password string) (Mailer, error) {
	if addr == "" {
		logger.Warn().Msg("SMTP_ADDR not set, verification links will be logged")
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(addr, from, username, password)
}

// LogMailer writes verification links to the log. Used in development.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerification(_ context.Context, to, link string) error {
	m.logger.Info().
		Str("to", to).
		Str("link", link).
		Msg("verification email")
	return nil
}

// SMTPMailer sends mail through an SMTP relay. STARTTLS is used when the
// relay offers it; PLAIN auth is enabled when a username is configured.
type SMTPMailer struct {
	client *gomail.Client
	from   string
}

// NewSMTPMailer creates a mailer for the relay at addr (host:port).
func NewSMTPMailer(addr, from, username, password string) (*SMTPMailer, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("smtp addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("smtp port: %w", err)
	}

	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
	}
	if username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(username),
			gomail.WithPassword(password),
		)
	}

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPMailer{client: client, from: from}, nil
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to, link string) error {
	msg, err := verificationMessage(m.from, to, link)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

func verificationMessage(from, to, link string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject("Verify your chatboard email")
	msg.SetBodyString(gomail.TypeTextPlain,
		"Open this link to verify your email address:\n\n"+link+"\n\nThe link expires in 24 hours.\n")
	return msg, nil
}
