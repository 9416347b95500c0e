package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"auction-tracker/internal/config"
	apperrors "auction-tracker/internal/errors"
	"auction-tracker/internal/models"
	"auction-tracker/internal/store"
)

// OutboxDispatcher records messages in the store's mail table, where a
// separate mailer can pick them up.
type OutboxDispatcher struct {
	mail store.MailStore
}

// NewOutboxDispatcher creates a new OutboxDispatcher.
func NewOutboxDispatcher(mail store.MailStore) *OutboxDispatcher {
	return &OutboxDispatcher{mail: mail}
}

// Name returns the name of the channel.
func (o *OutboxDispatcher) Name() string {
	return "outbox"
}

// IsEnabled returns whether the channel is enabled.
func (o *OutboxDispatcher) IsEnabled() bool {
	return o.mail != nil
}

// Dispatch writes the message to the outbox.
func (o *OutboxDispatcher) Dispatch(ctx context.Context, msg Message) error {
	err := o.mail.SaveMail(ctx, &models.MailRecord{
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return apperrors.NewDispatchError(o.Name(), msg.To, err)
	}
	return nil
}

// WebhookDispatcher posts messages as JSON to an HTTP endpoint.
type WebhookDispatcher struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookDispatcher creates a new WebhookDispatcher.
func NewWebhookDispatcher(cfg config.WebhookConfig) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the channel.
func (w *WebhookDispatcher) Name() string {
	return "webhook"
}

// IsEnabled returns whether the channel is enabled.
func (w *WebhookDispatcher) IsEnabled() bool {
	return w.enabled
}

// Dispatch sends a message via webhook.
func (w *WebhookDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if !w.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"to":        msg.To,
		"subject":   msg.Subject,
		"text":      msg.Text,
		"html":      msg.HTML,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AuctionTracker/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.NewDispatchError(w.Name(), msg.To, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.NewDispatchError(w.Name(), msg.To, fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	return nil
}

// EmailDispatcher sends messages via SMTP.
type EmailDispatcher struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	enabled  bool
	timeout  time.Duration
}

// NewEmailDispatcher creates a new EmailDispatcher.
func NewEmailDispatcher(cfg config.EmailConfig) *EmailDispatcher {
	return &EmailDispatcher{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		enabled:  cfg.Enabled && cfg.SMTPHost != "" && cfg.From != "",
		timeout:  30 * time.Second,
	}
}

// Name returns the name of the channel.
func (e *EmailDispatcher) Name() string {
	return "email"
}

// IsEnabled returns whether the channel is enabled.
func (e *EmailDispatcher) IsEnabled() bool {
	return e.enabled
}

// Dispatch sends a message via email. The whole SMTP exchange is bounded by
// the dispatcher timeout and by ctx.
func (e *EmailDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if !e.enabled {
		return nil
	}
	if msg.To == "" {
		return apperrors.NewDispatchError(e.Name(), msg.To, apperrors.ErrNoEmail)
	}

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	if err := e.send(ctx, auth, msg.To, buildMIME(e.from, msg)); err != nil {
		return apperrors.NewDispatchError(e.Name(), msg.To, err)
	}
	return nil
}

// buildMIME renders a multipart/alternative message with text and HTML parts.
// Header values never carry line breaks and the subject is Q-encoded.
func buildMIME(from string, msg Message) []byte {
	const boundary = "auction-tracker-boundary"

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", headerValue(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTML == "" {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text)
		return b.Bytes()
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.Text)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.HTML)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func headerValue(v string) string {
	return headerBreaks.Replace(v)
}

// send runs one SMTP exchange. Port 465 uses implicit TLS; other ports
// upgrade with STARTTLS when the server offers it.
func (e *EmailDispatcher) send(ctx context.Context, auth smtp.Auth, to string, msg []byte) error {
	addr := net.JoinHostPort(e.smtpHost, strconv.Itoa(e.smtpPort))
	tlsConfig := &tls.Config{ServerName: e.smtpHost}
	dialer := &net.Dialer{Timeout: e.timeout}

	var (
		conn net.Conn
		err  error
	)
	if e.smtpPort == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("SMTP dial failed: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(e.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("setting SMTP deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if e.smtpPort != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("SMTP STARTTLS failed: %w", err)
			}
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}

	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
