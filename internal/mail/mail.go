// Package mail sends notification email through the provider HTTP API, or only
// logs it when no provider key is configured.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"procuredata.io/internal/dataspace"
	"procuredata.io/internal/obs"
)

// Message is one outbound HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var errNoRecipient = errors.New("mail: recipient is required")

// ResendClient posts messages to the Resend /emails endpoint.
type ResendClient struct {
	apiURL string
	apiKey string
	from   string
	http   *http.Client
}

func NewResendClient(apiURL, apiKey, from string, client *http.Client) *ResendClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ResendClient{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		from:   from,
		http:   client,
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (c *ResendClient) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errNoRecipient
	}
	body, err := json.Marshal(resendRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mail provider: %v", dataspace.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("%w: mail provider returned %d: %s", dataspace.ErrUpstream, resp.StatusCode, providerMessage(raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func providerMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(raw))
}

// LogSender writes message metadata to the service log instead of sending.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errNoRecipient
	}
	l := s.logger
	if l == nil {
		l = obs.Logger()
	}
	l.Info("email (log only)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("html_bytes", len(msg.HTML)))
	return nil
}
