// Package mailer renders and delivers transactional email over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

// Email is the queue payload for one outgoing notification email.
type Email struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	ImageURL string `json:"imageUrl,omitempty"`
	CTALabel string `json:"ctaLabel,omitempty"`
	CTAURL   string `json:"ctaUrl,omitempty"`
}

func (e Email) validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("email recipient is required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.New("email subject is required")
	}
	return nil
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	dialer   dialer
	from     string
	fromName string
}

func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	if !cfg.Enabled() {
		return nil, errors.New("smtp host is required")
	}
	return &SMTPSender{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if err := email.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := Render(email)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", s.from, s.fromName)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", plainText(email))
	msg.AddAlternative("text/html", body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

var notificationTemplate = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;background:#f5f5f5;padding:24px;">
  <div style="max-width:560px;margin:0 auto;background:#fff;border-radius:8px;padding:24px;">
    <h2 style="margin-top:0;">{{.Title}}</h2>
    {{if .ImageURL}}<img src="{{.ImageURL}}" alt="" style="max-width:100%;border-radius:6px;margin-bottom:16px;">{{end}}
    <p style="line-height:1.5;">{{.Message}}</p>
    {{if .CTAURL}}<p><a href="{{.CTAURL}}" style="display:inline-block;padding:10px 20px;text-decoration:none;border-radius:5px;background-color:#007bff;color:#fff;">{{or .CTALabel "View"}}</a></p>{{end}}
  </div>
</body>
</html>`))

// Render produces the HTML body of a notification email.
func Render(email Email) (string, error) {
	if email.Title == "" {
		email.Title = email.Subject
	}
	var buf bytes.Buffer
	if err := notificationTemplate.Execute(&buf, email); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func plainText(email Email) string {
	var b strings.Builder
	b.WriteString(email.Message)
	if email.CTAURL != "" {
		b.WriteString("\n\n")
		b.WriteString(email.CTAURL)
	}
	return b.String()
}
