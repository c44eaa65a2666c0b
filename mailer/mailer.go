// Copyright 2026 The sw1tch Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailer delivers registration-token emails. Messages are
// multipart/alternative with a plain-text and an HTML body, both
// rendered from operator-editable template files.
package mailer

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime/multipart"
	"mime/quotedprintable"
	"net/smtp"
	"text/template"

	"github.com/sw1tch/sw1tch/lib/config"
)

// TemplateData is what the subject and body templates may reference.
type TemplateData struct {
	Homeserver        string
	RegistrationToken string
	RequestedUsername string
	UTCTime           string
	TimeUntilReset    string
}

// Mailer renders and sends registration-token emails.
type Mailer struct {
	smtp    config.SMTPConfig
	subject *template.Template
	plain   *template.Template
	html    *template.Template
	logger  *slog.Logger

	// send is swapped in tests; production uses smtp.SendMail-style
	// delivery through sendSMTP.
	send func(recipient string, message []byte) error
}

// New creates a Mailer from the SMTP settings, a subject template
// string, and the paths of the plain-text and HTML body templates.
func New(smtpConfig config.SMTPConfig, subject, plainPath, htmlPath string, logger *slog.Logger) (*Mailer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	subjectTemplate, err := template.New("subject").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("mailer: invalid subject template: %w", err)
	}
	plainTemplate, err := template.ParseFiles(plainPath)
	if err != nil {
		return nil, fmt.Errorf("mailer: failed to load plain body template: %w", err)
	}
	htmlTemplate, err := template.ParseFiles(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("mailer: failed to load HTML body template: %w", err)
	}

	m := &Mailer{
		smtp:    smtpConfig,
		subject: subjectTemplate,
		plain:   plainTemplate,
		html:    htmlTemplate,
		logger:  logger,
	}
	m.send = m.sendSMTP
	return m, nil
}

// SendRegistrationToken renders and delivers one token email.
func (m *Mailer) SendRegistrationToken(recipient string, data TemplateData) error {
	message, err := m.buildMessage(recipient, data)
	if err != nil {
		return err
	}
	if err := m.send(recipient, message); err != nil {
		return fmt.Errorf("mailer: failed to send to %s: %w", recipient, err)
	}
	m.logger.Info("registration email sent", "to", recipient, "username", data.RequestedUsername)
	return nil
}

// buildMessage renders the full RFC 5322 message: headers plus a
// multipart/alternative body with the plain part first so clients that
// cannot render HTML fall back cleanly.
func (m *Mailer) buildMessage(recipient string, data TemplateData) ([]byte, error) {
	var subject bytes.Buffer
	if err := m.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("mailer: failed to render subject: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/alternative; boundary=%q\r\n\r\n",
		m.smtp.From, recipient, subject.String(), writer.Boundary())

	if err := m.writePart(writer, "text/plain", m.plain, data); err != nil {
		return nil, err
	}
	if err := m.writePart(writer, "text/html", m.html, data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("mailer: failed to finish message: %w", err)
	}

	return append([]byte(headers), body.Bytes()...), nil
}

func (m *Mailer) writePart(writer *multipart.Writer, contentType string, bodyTemplate *template.Template, data TemplateData) error {
	header := map[string][]string{
		"Content-Type":              {contentType + "; charset=utf-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("mailer: failed to create %s part: %w", contentType, err)
	}
	encoder := quotedprintable.NewWriter(part)
	if err := bodyTemplate.Execute(encoder, data); err != nil {
		return fmt.Errorf("mailer: failed to render %s body: %w", contentType, err)
	}
	return encoder.Close()
}

// sendSMTP delivers the message over SMTP with STARTTLS and plain
// auth, matching what submission on port 587 expects.
func (m *Mailer) sendSMTP(recipient string, message []byte) error {
	address := fmt.Sprintf("%s:%d", m.smtp.Host, m.smtp.Port)

	client, err := smtp.Dial(address)
	if err != nil {
		return err
	}
	defer client.Close()

	if m.smtp.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.smtp.Host}); err != nil {
			return err
		}
	}
	if m.smtp.Username != "" {
		auth := smtp.PlainAuth("", m.smtp.Username, m.smtp.Password, m.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(m.smtp.From); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	data, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := data.Write(message); err != nil {
		return err
	}
	if err := data.Close(); err != nil {
		return err
	}
	return client.Quit()
}
