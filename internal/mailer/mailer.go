// Package mailer sends transactional email through an HTTP email API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Mailer sends one email. Implementations must not retry; callers log and
// move on when delivery fails.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes the email to the log instead of sending it. Default for
// local runs without an API key.
type LogMailer struct {
	Log *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Log.Info("email (not sent, no mail API configured)",
		"to", to, "subject", subject, "body", body)
	return nil
}

// APIMailer sends through a Brevo-compatible transactional email HTTP API.
type APIMailer struct {
	baseURL    string
	apiKey     string
	fromEmail  string
	senderName string
	client     *http.Client
}

// NewAPIMailer creates a mailer posting to the given API endpoint.
func NewAPIMailer(baseURL, apiKey, fromEmail, senderName string) *APIMailer {
	return &APIMailer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		senderName: senderName,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type apiAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type apiSendRequest struct {
	Sender      apiAddress   `json:"sender"`
	To          []apiAddress `json:"to"`
	Subject     string       `json:"subject"`
	HTMLContent string       `json:"htmlContent"`
}

// Send posts one email to the API.
func (m *APIMailer) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(apiSendRequest{
		Sender:      apiAddress{Email: m.fromEmail, Name: m.senderName},
		To:          []apiAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: "<p>" + body + "</p>",
	})
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v3/smtp/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send email to %s: status %d: %s", to, resp.StatusCode, detail)
	}
	return nil
}
