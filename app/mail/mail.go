// Package mail delivers templated HTML email over SMTP.
package mail

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"

	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/sirupsen/logrus"
	gomail "github.com/wneessen/go-mail"
)

const ConfirmationTemplate = "email_template.html"

// ConfirmationData fills ConfirmationTemplate. Host is the public base URL
// the confirmation link points at.
type ConfirmationData struct {
	Username string
	Host     string
	Token    string
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var ErrUnknownTemplate = errors.New("unknown mail template")

// Sender sends one templated message.
type Sender interface {
	Send(ctx context.Context, to, subject, templateName string, data interface{}) error
}

type dialFunc func(ctx context.Context, msg *gomail.Msg) error

type SMTPSender struct {
	from     string
	fromName string
	dial     dialFunc
}

func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.SSL {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPSender{
		from:     cfg.From,
		fromName: cfg.FromName,
		dial: func(ctx context.Context, msg *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, templateName string, data interface{}) error {
	msg, err := s.newMessage(to, subject, templateName, data)
	if err != nil {
		return err
	}

	if err = s.dial(ctx, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func (s *SMTPSender) newMessage(to, subject, templateName string, data interface{}) (*gomail.Msg, error) {
	tpl := templates.Lookup(templateName)
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	if err := msg.SetBodyHTMLTemplate(tpl, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", templateName, err)
	}

	return msg, nil
}

// LogSender stands in for SMTP when no mail server is configured. It only
// records that a message would have been sent.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, templateName string, _ interface{}) error {
	if templates.Lookup(templateName) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	logrus.WithFields(logrus.Fields{
		"to":       to,
		"subject":  subject,
		"template": templateName,
	}).Info("mail delivery disabled, message not sent")
	return nil
}
