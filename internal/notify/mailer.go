package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Mailer delivers a single transactional email.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// NewMailer builds a Resend-backed mailer, or a noop mailer when no API key
// is configured.
func NewMailer(apiKey, from string) Mailer {
	if apiKey == "" {
		log.Printf("mailer disabled, using noop: empty api key")
		return noopMailer{}
	}
	return &ResendMailer{
		apiKey:  apiKey,
		from:    from,
		baseURL: "https://api.resend.com",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ResendMailer sends email through the Resend HTTP API.
type ResendMailer struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send posts one email. Any non-2xx response is an error.
func (m *ResendMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	body, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend responded %d: %s", resp.StatusCode, detail)
	}
	return nil
}

type noopMailer struct{}

func (noopMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	log.Printf("mailer noop send to=%s subject=%q", to, subject)
	return nil
}
