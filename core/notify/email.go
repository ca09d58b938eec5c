package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"simplicity-itsm/config"
)

// SMTPEmailSender emails incident events to the assignees' addresses.
type SMTPEmailSender struct {
	cfg  config.NotifyConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailSender(cfg config.NotifyConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPEmailSender) Name() string { return "email" }

func (s *SMTPEmailSender) Send(ctx context.Context, e Event) error {
	if s.cfg.SMTP.Host == "" || len(e.Recipients) == 0 {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTP.Host, s.cfg.SMTP.Port)
	var auth smtp.Auth
	if s.cfg.SMTP.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.SMTP.Username, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
	}
	subject := fmt.Sprintf("[%s] Incident %s: %s", e.Incident.Severity, e.Action, e.Incident.Title)
	body := formatEventText(e)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.EmailFrom, strings.Join(e.Recipients, ", "), subject, body)
	return s.send(addr, auth, s.cfg.EmailFrom, e.Recipients, []byte(msg))
}
