package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BrevoConfig configures the Brevo transactional email API
type BrevoConfig struct {
	APIKey      string
	Endpoint    string
	SenderEmail string
	SenderName  string
	// RetryMaxElapsed bounds the total time spent retrying one email
	RetryMaxElapsed time.Duration
}

// BrevoMailer sends email through Brevo's HTTP API, retrying transient failures
type BrevoMailer struct {
	http *http.Client
	cfg  BrevoConfig
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmail struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// StatusError is returned when Brevo answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("brevo: status %d: %s", e.Code, e.Body)
}

func NewBrevoMailer(cfg BrevoConfig) *BrevoMailer {
	if cfg.RetryMaxElapsed == 0 {
		cfg.RetryMaxElapsed = 30 * time.Second
	}
	return &BrevoMailer{
		http: &http.Client{Timeout: 10 * time.Second},
		cfg:  cfg,
	}
}

func (m *BrevoMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	html, err := render(verifyTemplate, struct{ Code string }{code})
	if err != nil {
		return err
	}
	return m.send(ctx, to, subjectVerify, html)
}

func (m *BrevoMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	html, err := render(resetTemplate, struct{ Link string }{link})
	if err != nil {
		return err
	}
	return m.send(ctx, to, subjectReset, html)
}

func (m *BrevoMailer) SendPasswordResetSuccess(ctx context.Context, to string) error {
	html, err := render(resetSuccessTemplate, nil)
	if err != nil {
		return err
	}
	return m.send(ctx, to, subjectResetSuccess, html)
}

func (m *BrevoMailer) send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(brevoEmail{
		Sender:      brevoAddress{Email: m.cfg.SenderEmail, Name: m.cfg.SenderName},
		To:          []brevoAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("api-key", m.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := m.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		// 5xx and 429 are worth another try
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = m.cfg.RetryMaxElapsed
	notify := func(err error, wait time.Duration) {
		log.Warn("Sending %q to %s failed, retrying in %s: %v", subject, to, wait, err)
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return err
	}

	log.Info("Sent %q to %s", subject, to)
	return nil
}
