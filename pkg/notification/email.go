package notification

import (
	"context"
	"fmt"
	"net/smtp"
)

// EmailConfig holds SMTP connection settings
type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// EmailSender sends templated notifications over SMTP
type EmailSender struct {
	config EmailConfig
}

// NewEmailSender creates an SMTP-backed sender
func NewEmailSender(config EmailConfig) *EmailSender {
	return &EmailSender{config: config}
}

// Send renders the template and delivers it to the recipient
func (s *EmailSender) Send(_ context.Context, to string, template Template, data map[string]string) error {
	subject, body, err := render(template, data)
	if err != nil {
		return err
	}
	return s.sendEmail(to, subject, body)
}

func render(template Template, data map[string]string) (subject, body string, err error) {
	switch template {
	case TemplateWelcome:
		subject = fmt.Sprintf("Welcome to ClassHub, %s!", data["org_name"])
		body = fmt.Sprintf(`<html><body>
			<h2>Welcome to ClassHub</h2>
			<p>Your organization <strong>%s</strong> is ready to go on the %s plan.</p>
			<p>Sign in at <a href="%s">%s</a> to set up your first class.</p>
		</body></html>`, data["org_name"], data["tier"], data["login_url"], data["login_url"])
	case TemplateInvitation:
		subject = fmt.Sprintf("You've been invited to join %s on ClassHub", data["org_name"])
		body = fmt.Sprintf(`<html><body>
			<h2>You're Invited</h2>
			<p>You have been invited to join <strong>%s</strong> as a %s.</p>
			<p><a href="%s">Click here to accept the invitation</a></p>
			<p>This invitation expires in 7 days.</p>
		</body></html>`, data["org_name"], data["role"], data["invite_url"])
	default:
		return "", "", fmt.Errorf("unknown notification template: %s", template)
	}
	return subject, body, nil
}

func (s *EmailSender) sendEmail(to, subject, body string) error {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	return smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg))
}
