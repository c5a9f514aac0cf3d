// Package mailer delivers account verification emails.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"shadowtips-backend/config"
)

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// New builds the mailer selected by cfg.Driver: log, smtp or resend.
func New(cfg config.Mail) (Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "log", "":
		return NewLogMailer(nil), nil
	case "smtp":
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required for MAIL_DRIVER=resend")
		}
		return NewResendMailer(cfg.ResendAPIKey, cfg.From), nil
	default:
		return nil, fmt.Errorf("unsupported MAIL_DRIVER %q", cfg.Driver)
	}
}

const verificationSubject = "ShadowTips | Verification Code"

var verificationHTML = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Verification Code</title></head>
<body style="font-family: Roboto, Verdana, sans-serif;">
  <h2>Hello {{.Username}},</h2>
  <p>Thank you for registering. Please use the following verification code to complete your registration:</p>
  <p style="font-size: 24px; letter-spacing: 4px;"><strong>{{.Code}}</strong></p>
  <p>The code expires in one hour.</p>
  <p>If you did not request this code, please ignore this email.</p>
</body>
</html>`))

// VerificationMessage renders the sign-up verification email.
func VerificationMessage(email, username, code string) (Message, error) {
	var buf bytes.Buffer
	data := struct{ Username, Code string }{username, code}
	if err := verificationHTML.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:      email,
		Subject: verificationSubject,
		HTML:    buf.String(),
		Text: fmt.Sprintf("Hello %s,\n\nYour verification code is %s. It expires in one hour.\n",
			username, code),
	}, nil
}

// SendVerification renders and sends the verification email.
func SendVerification(ctx context.Context, m Mailer, email, username, code string) error {
	msg, err := VerificationMessage(email, username, code)
	if err != nil {
		return err
	}
	return m.Send(ctx, msg)
}
