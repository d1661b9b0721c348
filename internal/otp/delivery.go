// AngelaMos | 2026
// delivery.go

package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/assocly/memberaccess/internal/config"
)

// Sender hands a message to whatever reaches the member's phone.
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

func NewSender(cfg config.DeliveryConfig) (Sender, error) {
	switch cfg.Mode {
	case config.DeliveryModeLog:
		return LogSender{}, nil
	case config.DeliveryModeHTTP:
		return NewGatewaySender(cfg, http.DefaultTransport), nil
	}
	return nil, fmt.Errorf("unknown delivery mode %q", cfg.Mode)
}

// LogSender writes messages to the log instead of sending them. Development
// only; config validation refuses it in production.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, phone, message string) error {
	slog.InfoContext(ctx, "otp message (log delivery)",
		"phone", maskPhone(phone),
		"message", message,
	)
	return nil
}

// GatewaySender posts messages to an HTTP SMS gateway, retrying transport
// errors and 5xx replies with exponential backoff until ctx expires.
type GatewaySender struct {
	client     *http.Client
	url        string
	apiKey     string
	senderID   string
	maxRetries uint64
}

func NewGatewaySender(
	cfg config.DeliveryConfig,
	transport http.RoundTripper,
) *GatewaySender {
	return &GatewaySender{
		client:     &http.Client{Transport: transport},
		url:        cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		senderID:   cfg.SenderID,
		maxRetries: 3,
	}
}

type gatewayRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func (g *GatewaySender) Send(ctx context.Context, phone, message string) error {
	body, err := json.Marshal(gatewayRequest{
		To:      phone,
		From:    g.senderID,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("encode sms request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond

	attempt := func() error {
		return g.post(ctx, body)
	}

	err = backoff.RetryNotify(
		attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, g.maxRetries), ctx),
		func(err error, wait time.Duration) {
			slog.WarnContext(ctx, "sms gateway retry",
				"phone", maskPhone(phone),
				"wait", wait,
				"error", err,
			)
		},
	)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

func (g *GatewaySender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		g.url,
		bytes.NewReader(body),
	)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	//nolint:errcheck // drain for connection reuse
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return backoff.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}
