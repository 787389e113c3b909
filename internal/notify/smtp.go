// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/wneessus/go-mail"
)

// DefaultSMTPTimeout bounds dialing and the SMTP conversation.
const DefaultSMTPTimeout = 15 * time.Second

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS requires STARTTLS. When false the connection stays plain.
	TLS     bool
	Timeout time.Duration
}

// SMTPSender delivers messages over SMTP. A connection is opened per message.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates cfg and returns an SMTPSender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSMTPTimeout
	}
	return &SMTPSender{cfg: cfg}, nil
}

// NewSMTPNotifier returns a Notifier that delivers over SMTP.
func NewSMTPNotifier(cfg SMTPConfig) (*Notifier, error) {
	sender, err := NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return &Notifier{sender: sender}, nil
}

// Send delivers msg.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMsg(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.cfg.Host, s.clientOptions()...)
	if err != nil {
		return oops.Code("SMTP_CLIENT_FAILED").With("host", s.cfg.Host).Wrap(err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return oops.Code("EMAIL_SEND_FAILED").
			With("host", s.cfg.Host).
			With("port", s.cfg.Port).
			With("to", msg.To).
			Wrap(err)
	}
	return nil
}

func (s *SMTPSender) buildMsg(msg Message) (*mail.Msg, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, oops.Code("EMAIL_BUILD_FAILED").With("from", s.cfg.From).Wrap(err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, oops.Code("EMAIL_BUILD_FAILED").With("to", msg.To).Wrap(err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}
	return opts
}
