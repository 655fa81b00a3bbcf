package notifier

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// SMTPConfig configures the email channel. The account address doubles as
// the From header and the auth username.
type SMTPConfig struct {
	Host     string
	Port     int // default 465 (implicit TLS)
	From     string
	Password string
}

// SMTPChannel sends one message per notification event over an
// authenticated, encrypted SMTP connection.
type SMTPChannel struct {
	cfg    SMTPConfig
	client *mail.Client
}

func NewSMTPChannel(cfg SMTPConfig) (*SMTPChannel, error) {
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.From),
		mail.WithPassword(cfg.Password),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPChannel{cfg: cfg, client: client}, nil
}

func (c *SMTPChannel) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(c.cfg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
