package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/heylo/heylo-auth/pkg/config"
)

// GatewaySender posts messages to the SMS gateway's send endpoint.
type GatewaySender struct {
	cfg    config.SMSConfig
	client *http.Client
}

func NewGatewaySender(cfg config.SMSConfig) *GatewaySender {
	return &GatewaySender{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *GatewaySender) SendVerificationCode(ctx context.Context, toPhone, code string) error {
	body := fmt.Sprintf("Your %s verification code is %s. It expires in 5 minutes.", s.cfg.SenderName, code)

	payload, err := json.Marshal(sendMessageRequest{To: toPhone, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("SMS gateway returned status %d: %s", resp.StatusCode, string(detail))
	}

	return nil
}
